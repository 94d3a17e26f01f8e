package wipimo

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rentcopilot/connection-hub/providers"
	"github.com/rs/zerolog/log"
)

const (
	selectorLogin    = "#UserName"
	selectorPassword = "#Password"
	selectorSubmit   = ".btn-connex"

	tokenExpression = `localStorage.getItem("accesstoken") || sessionStorage.getItem("accesstoken")`
)

// TokenCapturer drives the Wipimo login page and returns the bearer token the web app stores.
type TokenCapturer interface {
	CaptureToken(ctx context.Context, loginURL, login, password string) (string, error)
}

// ChromeCapturer runs a headless Chrome through chromedp.
type ChromeCapturer struct {
	execPath      string
	formTimeout   time.Duration
	submitTimeout time.Duration
}

var _ TokenCapturer = (*ChromeCapturer)(nil)

// NewChromeCapturer creates a capturer. An empty execPath lets chromedp find Chrome.
func NewChromeCapturer(execPath string, pageTimeout time.Duration) *ChromeCapturer {
	if pageTimeout <= 0 {
		pageTimeout = 30 * time.Second
	}
	return &ChromeCapturer{
		execPath:      execPath,
		formTimeout:   pageTimeout,
		submitTimeout: pageTimeout,
	}
}

func (c *ChromeCapturer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(1280, 720),
	)
	if c.execPath != "" {
		opts = append(opts, chromedp.ExecPath(c.execPath))
	}
	return opts
}

func (c *ChromeCapturer) CaptureToken(ctx context.Context, loginURL, login, password string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// Start the browser on the unbounded context so stage timeouts do not kill it.
	if err := chromedp.Run(browserCtx); err != nil {
		return "", c.classify(ctx, err, "unable to start the browser")
	}
	log.Debug().Str("url", loginURL).Msg("wipimo browser launched")

	formCtx, cancelForm := context.WithTimeout(browserCtx, c.formTimeout)
	defer cancelForm()
	err := chromedp.Run(formCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(selectorLogin, chromedp.ByQuery),
		chromedp.WaitVisible(selectorPassword, chromedp.ByQuery),
		chromedp.WaitVisible(selectorSubmit, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() == nil && stderrors.Is(err, context.DeadlineExceeded) {
			return "", providers.ContractViolation(Slug, "login form not found, the page may have changed", err)
		}
		return "", c.classify(ctx, err, "")
	}

	var token string
	submitCtx, cancelSubmit := context.WithTimeout(browserCtx, c.submitTimeout)
	defer cancelSubmit()
	err = chromedp.Run(submitCtx,
		chromedp.SendKeys(selectorLogin, login, chromedp.ByQuery),
		chromedp.SendKeys(selectorPassword, password, chromedp.ByQuery),
		chromedp.Click(selectorSubmit, chromedp.ByQuery),
		chromedp.Poll(tokenExpression, &token, chromedp.WithPollingTimeout(c.submitTimeout)),
	)
	if err != nil {
		if stderrors.Is(err, chromedp.ErrPollingTimeout) || (ctx.Err() == nil && stderrors.Is(err, context.DeadlineExceeded)) {
			return "", providers.InvalidCredentials(Slug, "no bearer token after login")
		}
		return "", c.classify(ctx, err, "")
	}
	if token == "" {
		return "", providers.InvalidCredentials(Slug, "no bearer token after login")
	}
	return token, nil
}

func (c *ChromeCapturer) classify(ctx context.Context, err error, detail string) error {
	msg := err.Error()
	switch {
	case ctx.Err() != nil:
		return providers.Timeout(Slug, err)
	case strings.Contains(msg, "ERR_NAME_NOT_RESOLVED"), strings.Contains(msg, "ERR_CONNECTION_REFUSED"), strings.Contains(msg, "ERR_INTERNET_DISCONNECTED"):
		return providers.EnvironmentUnreachable(Slug, err)
	case strings.Contains(msg, "ERR_TIMED_OUT"):
		return providers.Timeout(Slug, err)
	}
	f := providers.Classify(Slug, err)
	if detail != "" && f.Detail == "" {
		f.Detail = detail
	}
	return f
}
