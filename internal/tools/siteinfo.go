package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// DefaultSiteBaseURL is the château's official website.
const DefaultSiteBaseURL = "https://www.chateauversailles.fr"

const maxSiteInfoRunes = 4000

// siteTopics maps topics to pages of the official website.
var siteTopics = map[string]string{
	"horaires": "/preparer-ma-visite/informations-pratiques/horaires",
	"tarifs":   "/preparer-ma-visite/billets-et-tarifs",
	"acces":    "/preparer-ma-visite/informations-pratiques/venir-au-chateau",
	"jardins":  "/decouvrir/domaine/jardins",
}

// SiteInfoInput asks for a page of the official website, by topic or path.
type SiteInfoInput struct {
	Topic string `json:"topic,omitempty" jsonschema:"enum=horaires,enum=tarifs,enum=acces,enum=jardins"`
	Path  string `json:"path,omitempty" jsonschema:"description=Page path on the official website starting with /"`
}

// SiteInfo fetches pages of the official website as Markdown.
type SiteInfo struct {
	base   *url.URL
	client *http.Client
}

// NewSiteInfo creates a site client. An empty baseURL selects DefaultSiteBaseURL.
func NewSiteInfo(baseURL string, client *http.Client) (*SiteInfo, error) {
	if baseURL == "" {
		baseURL = DefaultSiteBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid site base URL %q", baseURL)
	}
	return &SiteInfo{base: u, client: client}, nil
}

// Page returns the requested page converted to Markdown and truncated.
func (s *SiteInfo) Page(ctx context.Context, in *SiteInfoInput) (string, error) {
	path := in.Path
	if in.Topic != "" {
		p, ok := siteTopics[in.Topic]
		if !ok {
			return "", malformed("sujet inconnu %q", in.Topic)
		}
		path = p
	}
	ref, err := url.Parse(path)
	if err != nil || ref.IsAbs() || ref.Host != "" {
		return "", malformed("chemin invalide %q", path)
	}
	target := s.base.ResolveReference(ref).String()

	body, contentType, err := fetch(ctx, s.client, target, "text/html")
	if err != nil {
		return "", callFailed("site du château", err)
	}
	if contentType != "" && !strings.Contains(contentType, "html") {
		return "", callFailed("site du château", errors.New("réponse non HTML: "+contentType))
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", callFailed("site du château", fmt.Errorf("conversion HTML: %w", err))
	}
	md = strings.TrimSpace(SafeBodyString([]byte(md), ""))
	if md == "" {
		return fmt.Sprintf("La page %s est vide.", target), nil
	}
	return fmt.Sprintf("Source : %s\n\n%s", target, truncateRunes(md, maxSiteInfoRunes)), nil
}

func (s *SiteInfo) tool() (*Tool, error) {
	return NewTool(KindSiteInfo,
		"Lire une page du site officiel du Château de Versailles (horaires, tarifs, accès, jardins).",
		[]Rule{{Expr: `topic != "" || path startsWith "/"`, Message: "topic ou path (commençant par /) est obligatoire"}},
		s.Page)
}
