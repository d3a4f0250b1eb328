package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeLauncher starts headless Chrome through chromedp.
type ChromeLauncher struct {
	ExecPath          string
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
}

// Launch starts a browser process. The process outlives ctx; ctx only bounds startup.
func (l ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(1366, 900),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}
	if l.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start chrome: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", ctx.Err())
	}

	timeout := l.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		navTimeout:  timeout,
	}, nil
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	navTimeout  time.Duration
}

// Render opens url in a fresh tab, waits for waitSelector and returns the page HTML.
func (b *chromeBrowser) Render(ctx context.Context, url, waitSelector string) (string, error) {
	if !b.Alive() {
		return "", ErrClosed
	}
	if waitSelector == "" {
		waitSelector = "body"
	}

	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.navTimeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err == nil {
		return html, nil
	}

	switch {
	case !b.Alive():
		return "", fmt.Errorf("render %s: %w", url, ErrClosed)
	case errors.Is(tabCtx.Err(), context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "", fmt.Errorf("render %s: %w", url, context.DeadlineExceeded)
	default:
		return "", fmt.Errorf("render %s: %w", url, err)
	}
}

func (b *chromeBrowser) Alive() bool {
	return b.ctx.Err() == nil
}

func (b *chromeBrowser) Close() error {
	if !b.Alive() {
		return nil
	}
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	return err
}
