package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	a4WidthIn  = 8.27
	a4HeightIn = 11.69
	marginIn   = 0.5

	defaultConvertTimeout = 30 * time.Second
)

// ChromeConverter prints HTML to PDF with headless Chrome. Each call gets
// its own browser context.
type ChromeConverter struct {
	remoteURL string
	timeout   time.Duration
}

// NewChromeConverter creates a converter. An empty remoteURL launches a
// local Chrome; otherwise it attaches to the DevTools endpoint at remoteURL.
func NewChromeConverter(remoteURL string) *ChromeConverter {
	return &ChromeConverter{remoteURL: remoteURL, timeout: defaultConvertTimeout}
}

// Convert loads html into a blank tab and prints it as A4.
func (c *ChromeConverter) Convert(ctx context.Context, html []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if c.remoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, c.remoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.DisableGPU)
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	}
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var pdf []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("get frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4WidthIn).
				WithPaperHeight(a4HeightIn).
				WithMarginTop(marginIn).
				WithMarginBottom(marginIn).
				WithMarginLeft(marginIn).
				WithMarginRight(marginIn).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}
