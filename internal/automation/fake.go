package automation

import (
	"context"
	"sync"
)

// FakeElement is an Element backed by the selector that matched it.
type FakeElement string

func (e FakeElement) Description() string { return string(e) }

// FakeDriver is a scripted Driver for tests. Listings are returned from
// ListJobs in order, with the last one repeating; every other call succeeds
// unless an override says otherwise.
type FakeDriver struct {
	mu sync.Mutex

	// Listings scripts successive ListJobs snapshots.
	Listings [][]Job
	// ListErrs scripts errors interleaved before the listings run out.
	ListErrs []error

	NavigateFunc   func(ctx context.Context, url string) error
	FindFirstFunc  func(ctx context.Context, selectors []string) (Element, error)
	ClickFunc      func(ctx context.Context, el Element) error
	FillFieldFunc  func(ctx context.Context, el Element, value string) error
	DownloadFunc   func(ctx context.Context) (string, error)
	ScreenshotFunc func(ctx context.Context) (string, error)

	listIndex int
	errIndex  int
	calls     []string
}

func (f *FakeDriver) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

// Calls returns the method names invoked so far, in order.
func (f *FakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeDriver) Navigate(ctx context.Context, url string) error {
	f.record("Navigate")
	if f.NavigateFunc != nil {
		return f.NavigateFunc(ctx, url)
	}
	return nil
}

func (f *FakeDriver) FindFirst(ctx context.Context, selectors []string) (Element, error) {
	f.record("FindFirst")
	if f.FindFirstFunc != nil {
		return f.FindFirstFunc(ctx, selectors)
	}
	if len(selectors) == 0 {
		return nil, ErrElementNotFound
	}
	return FakeElement(selectors[0]), nil
}

func (f *FakeDriver) Click(ctx context.Context, el Element) error {
	f.record("Click")
	if f.ClickFunc != nil {
		return f.ClickFunc(ctx, el)
	}
	return nil
}

func (f *FakeDriver) FillField(ctx context.Context, el Element, value string) error {
	f.record("FillField")
	if f.FillFieldFunc != nil {
		return f.FillFieldFunc(ctx, el, value)
	}
	return nil
}

func (f *FakeDriver) ListJobs(ctx context.Context) ([]Job, error) {
	f.record("ListJobs")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errIndex < len(f.ListErrs) {
		err := f.ListErrs[f.errIndex]
		f.errIndex++
		if err != nil {
			return nil, err
		}
	}
	if len(f.Listings) == 0 {
		return nil, nil
	}
	listing := f.Listings[f.listIndex]
	if f.listIndex < len(f.Listings)-1 {
		f.listIndex++
	}
	return append([]Job(nil), listing...), nil
}

func (f *FakeDriver) DownloadCurrentArtifact(ctx context.Context) (string, error) {
	f.record("DownloadCurrentArtifact")
	if f.DownloadFunc != nil {
		return f.DownloadFunc(ctx)
	}
	return "", nil
}

func (f *FakeDriver) TakeScreenshot(ctx context.Context) (string, error) {
	f.record("TakeScreenshot")
	if f.ScreenshotFunc != nil {
		return f.ScreenshotFunc(ctx)
	}
	return "", nil
}
