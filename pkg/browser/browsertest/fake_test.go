package browsertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wxarchiver/pkg/browser"
)

func TestFakePageSequencesRepeatLastValue(t *testing.T) {
	p := NewFakePage()
	p.URLs = []string{"a", "b"}
	ctx := context.Background()

	for _, want := range []string{"a", "b", "b"} {
		got, err := p.URL(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFakePageEmitRespectsMatchersAndUnsubscribe(t *testing.T) {
	p := NewFakePage()
	var images, all int
	p.OnResponse(browser.ImageResponses, func(*browser.Response) { images++ })
	stop := p.OnResponse(func(string, string) bool { return true }, func(*browser.Response) { all++ })

	p.Emit(&browser.Response{URL: "https://x/a.png", ContentType: "image/png"})
	p.Emit(&browser.Response{URL: "https://x/api", ContentType: "application/json"})
	stop()
	p.Emit(&browser.Response{URL: "https://x/b.png", ContentType: "image/png"})

	assert.Equal(t, 2, images)
	assert.Equal(t, 2, all)
	assert.Equal(t, 1, p.Subscribers())

	require.NoError(t, p.Close())
	p.Emit(&browser.Response{URL: "https://x/c.png", ContentType: "image/png"})
	assert.Equal(t, 2, images)
}

func TestFakePageEvaluate(t *testing.T) {
	p := NewFakePage()
	p.EvaluateFunc = func(_ *FakePage, expr string) (interface{}, error) {
		return map[string]interface{}{"expr": expr}, nil
	}

	var out struct {
		Expr string `json:"expr"`
	}
	require.NoError(t, p.Evaluate(context.Background(), "1+1", &out))
	assert.Equal(t, "1+1", out.Expr)
	assert.Equal(t, []string{"1+1"}, p.Evaluations)
}

func TestFakePageClick(t *testing.T) {
	p := NewFakePage()
	p.SetElement(".more", Element{Text: "加载更多", Visible: true})
	p.SetElement(".hidden", Element{Text: "x"})
	var clicked []string
	p.OnClick = func(_ *FakePage, target string) { clicked = append(clicked, target) }
	ctx := context.Background()

	hit, err := p.Click(ctx, ".hidden")
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = p.ClickText(ctx, "加载更多")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"text=加载更多"}, clicked)
}

func TestFakeSessionHandsOutPages(t *testing.T) {
	first := NewFakePage()
	session := NewFakeSession(first)
	launcher := NewFakeLauncher(session)

	s, err := launcher.Launch(context.Background(), browser.SessionOptions{Headless: true})
	require.NoError(t, err)
	assert.True(t, s.Headless())

	p1, err := s.NewPage(context.Background())
	require.NoError(t, err)
	p2, err := s.NewPage(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, p1)
	assert.NotSame(t, first, p2)
	assert.Len(t, session.Opened(), 2)
	require.Len(t, launcher.Launches, 1)
}
