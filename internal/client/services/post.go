package services

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/biru/internal/client/atproto"
	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/dmitrijs2005/biru/internal/logging"
)

const (
	// MaxPostLength is the Bluesky limit, counted here in runes.
	MaxPostLength = 300
	maxTagLength  = 64

	// DateLayout is the accepted form of the optional post date.
	DateLayout = "2006-01-02"
)

var (
	linkRe    = regexp.MustCompile(`https?://[^\s<>"]+`)
	mentionRe = regexp.MustCompile(`(?:^|[\s(])(@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)
	tagRe     = regexp.MustCompile(`(?:^|\s)(#[^\s#]+)`)
)

// PostService publishes posts to the authenticated account.
type PostService interface {
	// CreatePost publishes text dated date (YYYY-MM-DD, empty for now) and
	// returns the record URI.
	CreatePost(ctx context.Context, text, date string) (string, error)
}

type postService struct {
	auth AuthService
	pds  PDS
	log  logging.Logger
	now  func() time.Time
}

func NewPostService(auth AuthService, pds PDS, log logging.Logger) PostService {
	return &postService{auth: auth, pds: pds, log: log, now: time.Now}
}

func (s *postService) CreatePost(ctx context.Context, text, date string) (string, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return "", common.NewValidationError("text", "required")
	case utf8.RuneCountInString(text) > MaxPostLength:
		return "", common.NewValidationError("text", fmt.Sprintf("longer than %d characters", MaxPostLength))
	}

	createdAt := s.now().UTC()
	if date = strings.TrimSpace(date); date != "" {
		d, err := time.Parse(DateLayout, date)
		if err != nil {
			return "", common.NewValidationError("date", "expected YYYY-MM-DD")
		}
		createdAt = d
	}

	server := s.auth.Credentials().Server
	if server == "" {
		return "", common.ErrNoSession
	}

	post := models.Post{
		Type:      atproto.CollectionPost,
		Text:      text,
		Facets:    s.detectFacets(ctx, server, text),
		CreatedAt: createdAt,
	}

	var uri string
	err := s.auth.Authorized(ctx, func(ctx context.Context, creds models.Credentials) error {
		var err error
		uri, err = s.pds.CreateRecord(ctx, creds, atproto.CollectionPost, post)
		return err
	})
	if err != nil {
		return "", &common.OperationError{Op: "post", Err: err}
	}
	s.log.Info(ctx, "post created", "uri", uri, "facets", len(post.Facets))
	return uri, nil
}

// detectFacets finds links, tags and mentions. Mentions that do not resolve
// to a DID are left as plain text.
func (s *postService) detectFacets(ctx context.Context, server, text string) []models.Facet {
	var facets []models.Facet

	for _, m := range linkRe.FindAllStringIndex(text, -1) {
		start, end := m[0], trimTrailingPunct(text, m[0], m[1])
		facets = append(facets, models.Facet{
			Index:    models.ByteSlice{ByteStart: start, ByteEnd: end},
			Features: []models.FacetFeature{{Type: models.FacetLink, URI: text[start:end]}},
		})
	}

	for _, m := range tagRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], trimTrailingPunct(text, m[2], m[3])
		tag := text[start+1 : end]
		if tag == "" || utf8.RuneCountInString(tag) > maxTagLength || isDigits(tag) {
			continue
		}
		facets = append(facets, models.Facet{
			Index:    models.ByteSlice{ByteStart: start, ByteEnd: end},
			Features: []models.FacetFeature{{Type: models.FacetTag, Tag: tag}},
		})
	}

	for _, m := range mentionRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		handle := strings.ToLower(text[start+1 : end])
		did, err := s.pds.ResolveHandle(ctx, server, handle)
		if err != nil || did == "" {
			s.log.Debug(ctx, "mention not resolved", "handle", handle, "error", err)
			continue
		}
		facets = append(facets, models.Facet{
			Index:    models.ByteSlice{ByteStart: start, ByteEnd: end},
			Features: []models.FacetFeature{{Type: models.FacetMention, DID: did}},
		})
	}

	slices.SortFunc(facets, func(a, b models.Facet) int { return a.Index.ByteStart - b.Index.ByteStart })
	return facets
}

func trimTrailingPunct(text string, start, end int) int {
	for end > start && strings.ContainsRune(".,;:!?)'\"", rune(text[end-1])) {
		end--
	}
	return end
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
