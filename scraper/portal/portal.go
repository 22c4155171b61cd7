package portal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"ngx-pipeline/config"
	"ngx-pipeline/utils"
)

const (
	pollInterval     = 500 * time.Millisecond
	downloadInterval = 2 * time.Second
)

// Acquirer drives one scripted portal session: authenticate, navigate to
// the daily report, force the business date, export as PDF, and wait for
// the file to land in the download directory. The session is torn down at
// the end of every attempt.
type Acquirer struct {
	cfg         *config.Config
	logger      *utils.Logger
	downloadDir string
	state       SessionState
}

// New creates an Acquirer.
func New(cfg *config.Config, logger *utils.Logger) *Acquirer {
	return &Acquirer{
		cfg:    cfg,
		logger: logger,
		state:  Unauthenticated,
	}
}

// State reports how far the last attempt progressed.
func (a *Acquirer) State() SessionState { return a.state }

// Acquire runs the full session for the given DD/MM/YYYY date, downloading
// into downloadDir (owned by the calling run), and returns the path of the
// downloaded report. A step failure is overridden when a completed PDF is
// already present in the download directory: the portal occasionally
// finishes the client-side file write while the confirming round-trip
// errors out.
func (a *Acquirer) Acquire(ctx context.Context, date, downloadDir string) (string, error) {
	a.state = Unauthenticated
	a.downloadDir = downloadDir
	a.logger.Info("[portal] Starting report acquisition for %s", date)

	chromeBin := findChromeBinary(a.cfg.ChromeBin)
	a.logger.Info("[portal] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	defer a.teardown(browserCtx)

	path, err := a.run(browserCtx, date)
	if err != nil {
		// The export may have completed client-side even though a step
		// reported failure.
		if p, ok := FindArtifact(a.downloadDir); ok {
			a.logger.Warn("[portal] Step failed (%v) but a completed PDF is present — continuing", err)
			a.state = Exported
			return p, nil
		}
		return "", err
	}
	return path, nil
}

func (a *Acquirer) run(ctx context.Context, date string) (string, error) {
	if err := a.login(ctx); err != nil {
		return "", &SessionError{State: a.state, Err: err}
	}
	if err := a.navigateToReports(ctx); err != nil {
		return "", &SessionError{State: a.state, Err: err}
	}
	if err := a.parameterize(ctx, date); err != nil {
		return "", &SessionError{State: a.state, Err: err}
	}
	path, err := a.export(ctx)
	if err != nil {
		return "", &SessionError{State: a.state, Err: err}
	}
	return path, nil
}

// login submits credentials. There is no trustworthy "login succeeded"
// element; reaching the reports link afterwards is the only success signal.
func (a *Acquirer) login(ctx context.Context) error {
	err := chromedp.Run(ctx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(a.downloadDir).
			WithEventsEnabled(true),
		chromedp.Navigate(a.cfg.PortalBaseURL),
		chromedp.WaitVisible(`#un`, chromedp.ByID),
		chromedp.SendKeys(`#un`, a.cfg.PortalUsername, chromedp.ByID),
		chromedp.SendKeys(`#pw`, a.cfg.PortalPassword+kb.Enter, chromedp.ByID),
	)
	if err != nil {
		return fmt.Errorf("submit credentials: %w", err)
	}

	if err := a.waitFor(ctx, "reports link after login",
		`!!document.querySelector("a[href*='stockmktreports_panel.jsp']")`); err != nil {
		return err
	}

	a.state, err = advance(a.state, Authenticated)
	a.logger.Info("[portal] Login completed")
	return err
}

// navigateToReports walks two levels of embedded frames: the reports index
// panel, then the "More Reports" detail frame that hosts the date controls.
// Frames are same-origin, so presence checks and clicks go through their
// contentDocument rather than chromedp frame targeting.
func (a *Acquirer) navigateToReports(ctx context.Context) error {
	if err := a.click(ctx, "reports panel link",
		`(() => {
			const el = document.querySelector("a[href*='stockmktreports_panel.jsp']");
			if (!el) return false;
			el.click();
			return true;
		})()`); err != nil {
		return err
	}

	if err := a.waitFor(ctx, "More Reports link",
		`(() => {
			const f = document.getElementsByName('ffrm_page')[0];
			if (!f || !f.contentDocument) return false;
			return [...f.contentDocument.querySelectorAll('a')].some(x => x.textContent.includes('More Reports'));
		})()`); err != nil {
		return err
	}

	if err := a.click(ctx, "More Reports link",
		`(() => {
			const f = document.getElementsByName('ffrm_page')[0];
			const el = [...f.contentDocument.querySelectorAll('a')].find(x => x.textContent.includes('More Reports'));
			if (!el) return false;
			el.click();
			return true;
		})()`); err != nil {
		return err
	}

	if err := a.waitFor(ctx, "report parameter frame",
		`(() => {
			const f = document.getElementById('stockmktrptpanel_reports_other_page');
			return !!(f && f.contentDocument && f.contentDocument.getElementById('ondate'));
		})()`); err != nil {
		return err
	}

	a.logger.Info("[portal] Navigated to reports section")
	return nil
}

// parameterize forces the date control to the target date. The field is
// readonly and normally driven by a calendar widget, so the value is
// written directly and a synthetic change event dispatched, then report
// generation is triggered.
func (a *Acquirer) parameterize(ctx context.Context, date string) error {
	var ok bool
	err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`
		(() => {
			const f = document.getElementById('stockmktrptpanel_reports_other_page');
			if (!f || !f.contentDocument) return false;
			const doc = f.contentDocument;
			const radio = doc.querySelector("input[type='radio'][value='on']");
			if (radio) radio.click();
			const ondate = doc.getElementById('ondate');
			if (!ondate) return false;
			ondate.removeAttribute('readonly');
			ondate.value = %q;
			ondate.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		})()
	`, date), &ok))
	if err != nil {
		return fmt.Errorf("set report date: %w", err)
	}
	if !ok {
		return fmt.Errorf("date control not found in report frame")
	}

	a.state, err = advance(a.state, ReportParameterized)
	if err != nil {
		return err
	}

	if err := a.click(ctx, "generate report button",
		`(() => {
			const f = document.getElementById('stockmktrptpanel_reports_other_page');
			const el = f && f.contentDocument && f.contentDocument.getElementById('genreportbtn');
			if (!el) return false;
			el.click();
			return true;
		})()`); err != nil {
		return err
	}

	a.state, err = advance(a.state, ReportGenerated)
	a.logger.Info("[portal] Report generated for date: %s", date)
	return err
}

// export opens the viewer's export dialog, selects PDF and confirms. The
// confirmation click routinely errors because the dialog frame is torn
// down while the click is in flight; that failure is reclassified as
// "export initiated" and the download poll decides the real outcome.
func (a *Acquirer) export(ctx context.Context) (string, error) {
	if err := a.waitFor(ctx, "report viewer export control",
		`(() => {
			const f = document.getElementById('launch_report_0_page');
			return !!(f && f.contentDocument && f.contentDocument.getElementById('export'));
		})()`); err != nil {
		return "", err
	}

	if err := a.click(ctx, "export icon",
		`(() => {
			const f = document.getElementById('launch_report_0_page');
			const el = f.contentDocument.getElementById('export');
			if (!el) return false;
			el.click();
			return true;
		})()`); err != nil {
		return "", err
	}

	if err := a.waitFor(ctx, "export format dialog",
		`(() => {
			const f = document.getElementById('birtrpt_export_dlg_page');
			return !!(f && f.contentDocument && f.contentDocument.getElementById('fmt'));
		})()`); err != nil {
		return "", err
	}

	a.logger.Info("[portal] Selecting PDF format")
	confirmErr := a.click(ctx, "export confirm",
		`(() => {
			const f = document.getElementById('birtrpt_export_dlg_page');
			const doc = f.contentDocument;
			const fmt = doc.getElementById('fmt');
			if (!fmt) return false;
			fmt.value = 'pdf';
			fmt.dispatchEvent(new Event('change', { bubbles: true }));
			const ok = doc.getElementById('ok');
			if (!ok) return false;
			ok.click();
			return true;
		})()`)
	if confirmErr != nil {
		a.logger.Info("[portal] Export confirm raised (%v) — dialog closes on OK, treating as initiated", confirmErr)
	}

	a.logger.Info("[portal] Waiting for download into %s", a.downloadDir)
	budget := time.Duration(a.cfg.DownloadWaitSec) * time.Second
	path, err := WaitForArtifact(ctx, a.downloadDir, budget, downloadInterval)
	if err != nil {
		return "", fmt.Errorf("download did not materialise: %w", err)
	}

	a.state, err = advance(a.state, Exported)
	a.logger.Info("[portal] Report downloaded: %s", path)
	return path, err
}

// teardown always runs: graceful logout first, direct logout URL as a
// fallback. The browser contexts are cancelled by the caller's defers.
func (a *Acquirer) teardown(ctx context.Context) {
	a.logger.Info("[portal] Logging out")

	tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var ok bool
	err := chromedp.Run(tctx, chromedp.Evaluate(`
		(() => {
			window.warnOnClose = false;
			const el = document.querySelector("a[href*='logoutUser']");
			if (!el) return false;
			el.click();
			return true;
		})()
	`, &ok))
	if err != nil || !ok {
		if navErr := chromedp.Run(tctx, chromedp.Navigate(a.cfg.PortalBaseURL+"logoutUser")); navErr != nil {
			a.logger.Warn("[portal] Logout fallback failed: %v", navErr)
		}
	}

	if a.state < LoggedOut {
		a.state = LoggedOut
	}
}

// waitFor polls a boolean JS expression until it is true or the session
// wait budget runs out.
func (a *Acquirer) waitFor(ctx context.Context, desc, expr string) error {
	deadline := time.Now().Add(time.Duration(a.cfg.SessionWaitSec) * time.Second)
	for {
		var ok bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &ok)); err == nil && ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s", desc)
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// click evaluates a JS click expression that returns whether the target
// element was found.
func (a *Acquirer) click(ctx context.Context, desc, expr string) error {
	var ok bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return fmt.Errorf("click %s: %w", desc, err)
	}
	if !ok {
		return fmt.Errorf("click %s: element not found", desc)
	}
	return nil
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured override.
func findChromeBinary(override string) string {
	if override != "" {
		return override
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
