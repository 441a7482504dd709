package extract

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	exterrors "github.com/adverant/nexus/formextract-worker/internal/errors"
	"github.com/adverant/nexus/formextract-worker/internal/logging"
	"github.com/adverant/nexus/formextract-worker/internal/model"
	"github.com/adverant/nexus/formextract-worker/internal/resolver"
)

// fakeResolver supports the listed fields (all when nil) and records every call
type fakeResolver struct {
	name    string
	fields  map[string]bool
	resolve func(rc *resolver.Context) (*model.Content, error)

	mu       sync.Mutex
	supports int
	calls    []string
}

func (f *fakeResolver) Name() string { return f.name }

func (f *fakeResolver) Support(point model.ExtractionPoint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supports++
	return f.fields == nil || f.fields[point.DocumentField]
}

func (f *fakeResolver) Resolve(ctx context.Context, rc *resolver.Context) (*model.Content, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rc.Point.DocumentField+"@"+rc.Image.ImageID)
	f.mu.Unlock()
	if f.resolve != nil {
		return f.resolve(rc)
	}
	c := model.NewContent(rc.Image.ImageID, rc.Point)
	c.ValueInfo = []model.Field{{Key: rc.Point.DocumentField, Value: rc.Image.ImageID}}
	return &c, nil
}

func newOrchestrator(t *testing.T, opts []Option, resolvers ...resolver.Resolver) *Orchestrator {
	t.Helper()
	registry, err := resolver.NewRegistry(resolvers...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	o, err := NewOrchestrator(registry, append([]Option{WithLogger(logging.Nop())}, opts...)...)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func formConfig(fields ...string) model.FormConfig {
	cfg := model.FormConfig{FormTypeID: "FT-1", MultiPage: true}
	for _, f := range fields {
		cfg.ExtractPoint = append(cfg.ExtractPoint, model.ExtractionPoint{DocumentField: f, Page: 1})
	}
	return cfg
}

func pageImages(page int, ids ...string) []model.Image {
	images := make([]model.Image, len(ids))
	for i, id := range ids {
		images[i] = model.Image{ImageID: id, DocumentPage: page}
	}
	return images
}

func ocrFor(ids ...string) []model.OcrOutput {
	outputs := make([]model.OcrOutput, len(ids))
	for i, id := range ids {
		outputs[i] = model.OcrOutput{ImageName: id}
	}
	return outputs
}

func fieldNames(contents []model.Content) []string {
	names := make([]string, len(contents))
	for i, c := range contents {
		names[i] = c.ExtractPoint.DocumentField
	}
	return names
}

func TestParsePreservesOrder(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			slow := &fakeResolver{name: "slow", resolve: func(rc *resolver.Context) (*model.Content, error) {
				if rc.Point.DocumentField == "a" {
					time.Sleep(20 * time.Millisecond)
				}
				c := model.NewContent(rc.Image.ImageID, rc.Point)
				c.ValueInfo = []model.Field{{Key: rc.Point.DocumentField, Value: "v"}}
				return &c, nil
			}}
			o := newOrchestrator(t, []Option{WithParallelism(parallelism)}, slow)

			cfg := formConfig("a", "b", "c", "d", "e")
			contents, err := o.Parse(context.Background(), pageImages(1, "img-1"), ocrFor("img-1"), cfg)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := fieldNames(contents); !reflect.DeepEqual(got, []string{"a", "b", "c", "d", "e"}) {
				t.Errorf("order = %v", got)
			}
			for _, c := range contents {
				if c.Image != "img-1" || len(c.ValueInfo) != 1 {
					t.Errorf("unexpected content %+v", c)
				}
			}
		})
	}
}

func TestParseWithoutImages(t *testing.T) {
	fake := &fakeResolver{name: "fake"}
	o := newOrchestrator(t, nil, fake)

	contents, err := o.Parse(context.Background(), nil, nil, formConfig("a", "b", "c"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	for _, c := range contents {
		if c.Image != "" || c.ValueInfo == nil || len(c.ValueInfo) != 0 {
			t.Errorf("expected empty default content, got %+v", c)
		}
	}
	if fake.supports != 0 || len(fake.calls) != 0 {
		t.Errorf("no lookup expected, got %d supports and %v calls", fake.supports, fake.calls)
	}
}

func TestParseWithoutResolver(t *testing.T) {
	fake := &fakeResolver{name: "fake", fields: map[string]bool{"known": true}}
	o := newOrchestrator(t, nil, fake)

	contents, err := o.Parse(context.Background(), pageImages(1, "img-1"), ocrFor("img-1"), formConfig("unknown"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(contents) != 1 || contents[0].Image != "" || !contents[0].Empty() {
		t.Errorf("expected one default content, got %+v", contents)
	}
	if len(fake.calls) != 0 {
		t.Errorf("Resolve must not be called, got %v", fake.calls)
	}
}

func TestParseMergesImagesOfThePage(t *testing.T) {
	fake := &fakeResolver{name: "fake", resolve: func(rc *resolver.Context) (*model.Content, error) {
		c := model.NewContent(rc.Image.ImageID, rc.Point)
		switch rc.Image.ImageID {
		case "p1-a":
			c.ValueInfo = []model.Field{{Key: "k1", Value: "v1"}}
		case "p1-b":
			c.ValueInfo = []model.Field{{Key: "k1", Value: "v2"}, {Key: "k2", Value: "v3"}}
		}
		return &c, nil
	}}
	o := newOrchestrator(t, nil, fake)

	images := append(pageImages(1, "p1-a"), model.Image{ImageID: "p2", DocumentPage: 2})
	images = append(images, pageImages(1, "p1-b")...)

	contents, err := o.Parse(context.Background(), images, ocrFor("p1-a", "p2", "p1-b"), formConfig("field"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got := contents[0]
	want := []model.Field{{Key: "k1", Value: "v2"}, {Key: "k2", Value: "v3"}}
	if !reflect.DeepEqual(got.ValueInfo, want) {
		t.Errorf("ValueInfo = %+v, want %+v", got.ValueInfo, want)
	}
	if got.Image != "p1-a" {
		t.Errorf("merged content should keep the first image, got %q", got.Image)
	}
	if !reflect.DeepEqual(fake.calls, []string{"field@p1-a", "field@p1-b"}) {
		t.Errorf("calls = %v", fake.calls)
	}
}

func TestParseKeepsRepeatedKeys(t *testing.T) {
	rows := []model.Field{{Key: "row", Value: "r1"}, {Key: "row", Value: "r2"}, {Key: "row", Value: "r3"}}
	table := &fakeResolver{name: "table", resolve: func(rc *resolver.Context) (*model.Content, error) {
		c := model.NewContent(rc.Image.ImageID, rc.Point)
		if rc.Image.ImageID == "img-1" {
			c.ValueInfo = append(c.ValueInfo, rows...)
		}
		return &c, nil
	}}
	o := newOrchestrator(t, nil, table)

	tests := []struct {
		name   string
		images []model.Image
	}{
		{"single image", pageImages(1, "img-1")},
		{"second image adds nothing", pageImages(1, "img-1", "img-2")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := make([]string, len(tt.images))
			for i, img := range tt.images {
				ids[i] = img.ImageID
			}

			contents, err := o.Parse(context.Background(), tt.images, ocrFor(ids...), formConfig("table"))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(contents[0].ValueInfo, rows) {
				t.Errorf("ValueInfo = %+v, want %+v", contents[0].ValueInfo, rows)
			}
		})
	}

	if rows[0].Value != "r1" || len(rows) != 3 {
		t.Errorf("resolver fields modified: %+v", rows)
	}
}

func TestParseNoMatchingPage(t *testing.T) {
	fake := &fakeResolver{name: "fake"}
	o := newOrchestrator(t, nil, fake)

	contents, err := o.Parse(context.Background(), pageImages(3, "img-3"), ocrFor("img-3"), formConfig("field"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if contents[0].Image != "" || !contents[0].Empty() {
		t.Errorf("expected default content, got %+v", contents[0])
	}
}

func TestParseNoValue(t *testing.T) {
	tests := []struct {
		name    string
		resolve func(rc *resolver.Context) (*model.Content, error)
	}{
		{"nil content", func(*resolver.Context) (*model.Content, error) { return nil, nil }},
		{"sentinel", func(*resolver.Context) (*model.Content, error) { return nil, resolver.ErrNoValue }},
		{"wrapped sentinel", func(*resolver.Context) (*model.Content, error) {
			return nil, fmt.Errorf("alias not found: %w", resolver.ErrNoValue)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, nil, &fakeResolver{name: "fake", resolve: tt.resolve})

			contents, err := o.Parse(context.Background(), pageImages(1, "img-1"), ocrFor("img-1"), formConfig("field"))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if contents[0].Image != "img-1" || !contents[0].Empty() || contents[0].ValueInfo == nil {
				t.Errorf("expected empty content for img-1, got %+v", contents[0])
			}
		})
	}
}

func TestParseMissingOCRAborts(t *testing.T) {
	fake := &fakeResolver{name: "fake"}
	o := newOrchestrator(t, nil, fake)

	images := pageImages(1, "img-1", "img-2")
	contents, err := o.Parse(context.Background(), images, ocrFor("img-1"), formConfig("a", "b"))

	if !stderrors.Is(err, exterrors.ErrOCRResultMissing) {
		t.Fatalf("expected OCR_RESULT_MISSING, got %v", err)
	}
	if contents != nil {
		t.Errorf("no partial results expected, got %+v", contents)
	}

	var extractionErr *exterrors.ExtractionError
	if !stderrors.As(err, &extractionErr) || extractionErr.ImageID != "img-2" || extractionErr.FormTypeID != "FT-1" {
		t.Errorf("unexpected error detail: %+v", extractionErr)
	}
}

func TestParseMissingOCRIsolated(t *testing.T) {
	fake := &fakeResolver{name: "fake", fields: map[string]bool{"a": true, "b": true}}
	o := newOrchestrator(t, []Option{WithFailurePolicy(IsolatePoint)}, fake)

	cfg := formConfig("a", "b")
	cfg.ExtractPoint[1].Page = 2
	images := append(pageImages(1, "img-1"), pageImages(2, "img-2")...)

	contents, err := o.Parse(context.Background(), images, ocrFor("img-1"), cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Error != "" || len(contents[0].ValueInfo) != 1 {
		t.Errorf("point a should resolve normally, got %+v", contents[0])
	}
	if contents[1].Error == "" || !contents[1].Empty() || contents[1].Image != "img-2" {
		t.Errorf("point b should carry the failure, got %+v", contents[1])
	}
}

func TestParseResolverErrorPropagates(t *testing.T) {
	boom := stderrors.New("model unavailable")
	for _, parallelism := range []int{1, 3} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			fake := &fakeResolver{name: "fake", resolve: func(rc *resolver.Context) (*model.Content, error) {
				if rc.Point.DocumentField == "b" {
					return nil, boom
				}
				c := model.NewContent(rc.Image.ImageID, rc.Point)
				return &c, nil
			}}
			o := newOrchestrator(t, []Option{WithParallelism(parallelism)}, fake)

			contents, err := o.Parse(context.Background(), pageImages(1, "img-1"), ocrFor("img-1"), formConfig("a", "b", "c"))
			if !stderrors.Is(err, boom) {
				t.Fatalf("expected resolver error, got %v", err)
			}
			if contents != nil {
				t.Errorf("no partial results expected, got %+v", contents)
			}
		})
	}
}

func TestParsePassesContext(t *testing.T) {
	var got *resolver.Context
	fake := &fakeResolver{name: "fake", resolve: func(rc *resolver.Context) (*model.Content, error) {
		got = rc
		return nil, nil
	}}
	o := newOrchestrator(t, nil, fake)

	images := append(pageImages(1, "img-1"), pageImages(2, "img-2")...)
	outputs := []model.OcrOutput{{ImageName: "img-1", Width: 100, Height: 50}, {ImageName: "img-2"}}

	if _, err := o.Parse(context.Background(), images, outputs, formConfig("field")); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got == nil {
		t.Fatal("resolver not called")
	}
	if got.Image.ImageID != "img-1" || got.OCR.Width != 100 || got.FormTypeID != "FT-1" || len(got.Images) != 2 {
		t.Errorf("unexpected context: %+v", got)
	}
}

func TestParseCancelledContext(t *testing.T) {
	o := newOrchestrator(t, nil, &fakeResolver{name: "fake"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Parse(ctx, pageImages(1, "img-1"), ocrFor("img-1"), formConfig("a")); !stderrors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewOrchestratorRequiresRegistry(t *testing.T) {
	if _, err := NewOrchestrator(nil); !stderrors.Is(err, exterrors.ErrNoResolverAvailable) {
		t.Errorf("expected NO_RESOLVER_AVAILABLE, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{"", AbortRun, false},
		{"abort", AbortRun, false},
		{"isolate", IsolatePoint, false},
		{"skip", AbortRun, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParsePolicy(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}
