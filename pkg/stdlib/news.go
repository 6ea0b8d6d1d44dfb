package stdlib

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harun/toolbelt/pkg/fanout"
	"github.com/harun/toolbelt/pkg/schema"
	"github.com/harun/toolbelt/pkg/tool"
)

// DefaultNewsURL is the Hacker News Firebase API.
const DefaultNewsURL = "https://hacker-news.firebaseio.com/v0"

var newsInput = schema.MustNew(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"count": map[string]interface{}{
			"type":        "integer",
			"minimum":     1,
			"maximum":     30,
			"default":     10,
			"description": "Number of top stories to fetch",
		},
	},
	"additionalProperties": false,
})

var newsOutput = schema.MustNew(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"stories": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []string{"id", "title"},
			},
		},
		"errors": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
	},
	"required": []string{"stories"},
})

// Story is one news item.
type Story struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	By    string `json:"by,omitempty"`
	Score int    `json:"score"`
	Time  int64  `json:"time,omitempty"`
}

// NewsConfig configures the news reader.
type NewsConfig struct {
	BaseURL string
	Client  *http.Client
	// Limit bounds concurrent item fetches. Zero means fanout.DefaultLimit.
	Limit  int
	Policy fanout.Policy
	// InFlight, when set, tracks item fetches in progress.
	InFlight fanout.Gauge
}

type newsArgs struct {
	Count int `json:"count"`
}

// NewsReader fetches top stories and their details.
type NewsReader struct {
	cfg NewsConfig
}

// NewNewsReader creates a reader. Empty fields take defaults.
func NewNewsReader(cfg NewsConfig) *NewsReader {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNewsURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &NewsReader{cfg: cfg}
}

// Tool returns the news tool backed by r.
func (r *NewsReader) Tool() tool.Tool {
	return tool.Native(tool.Definition{
		Name:        "news",
		Description: "Fetches the current top Hacker News stories with title, link, author and score.",
		Version:     "1.0.0",
		Tags:        []string{"news", "web"},
	}, newsInput, newsOutput, r.Read)
}

// Read is the news tool's native function. With fanout.CollectAll, stories
// that fail to load are reported in "errors" instead of failing the call.
func (r *NewsReader) Read(ctx context.Context, input interface{}) (interface{}, error) {
	args, err := schema.Decode[newsArgs](nil, input)
	if err != nil {
		return nil, err
	}
	if args.Count <= 0 {
		args.Count = 10
	}

	ids, err := r.TopStories(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > args.Count {
		ids = ids[:args.Count]
	}

	stories, errs, err := r.Stories(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{"stories": stories}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		out["errors"] = msgs
	}
	return out, nil
}

// TopStories returns the IDs of the current top stories.
func (r *NewsReader) TopStories(ctx context.Context) ([]int, error) {
	var ids []int
	if err := r.getJSON(ctx, r.cfg.BaseURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("failed to fetch top stories: %w", err)
	}
	return ids, nil
}

// Stories fetches every story in ids with bounded concurrency, keeping the
// order of ids. Under CollectAll failed items are returned in errs; under
// FailFast the first failure is returned as err.
func (r *NewsReader) Stories(ctx context.Context, ids []int) (stories []Story, errs []error, err error) {
	results, err := fanout.Map(ctx, ids, fanout.Options{
		Limit:    r.cfg.Limit,
		Policy:   r.cfg.Policy,
		InFlight: r.cfg.InFlight,
	}, r.story)
	if err != nil {
		return nil, nil, err
	}

	for _, res := range fanout.Errors(results) {
		errs = append(errs, fmt.Errorf("story %d: %w", ids[res.Index], res.Err))
	}
	return fanout.Values(results), errs, nil
}

func (r *NewsReader) story(ctx context.Context, id int) (Story, error) {
	var s Story
	if err := r.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", r.cfg.BaseURL, id), &s); err != nil {
		return Story{}, err
	}
	if s.ID == 0 {
		return Story{}, fmt.Errorf("item %d not found", id)
	}
	return s, nil
}

func (r *NewsReader) getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
