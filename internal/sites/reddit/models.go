package reddit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vartanbeno/go-reddit/v2/reddit"
)

// Credentials of a Reddit script app.
type Credentials struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Username     string
	Password     string
}

// flairTemplate is one entry of r/{sub}/api/link_flair_v2.
type flairTemplate struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	TextEditable bool   `json:"text_editable"`
	ModOnly      bool   `json:"mod_only"`
	Type         string `json:"type"`
}

// flairEndpoint reads link flair templates through the authenticated client.
type flairEndpoint struct {
	client *reddit.Client
}

func (f *flairEndpoint) LinkFlairTemplates(ctx context.Context, subreddit string) ([]flairTemplate, error) {
	path := fmt.Sprintf("r/%s/api/link_flair_v2", subreddit)
	req, err := f.client.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var templates []flairTemplate
	if _, err := f.client.Do(ctx, req, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}
