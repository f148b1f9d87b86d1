// Package search answers structured queries and natural-language questions
// over the media inventory.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/ai"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// Action types returned by Ask for recognized commands.
const (
	ActionCreateAlbum = "create_album"
	ActionDeleteAlbum = "delete_album"
	ActionSaveSearch  = "save_search"
	ActionStats       = "stats"
	ActionHelp        = "help"
)

// Action describes a command Ask recognized and executed.
type Action struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Query   string `json:"query,omitempty"`
	Message string `json:"message,omitempty"`
}

// AskResult is the answer to a natural-language question: either an action
// or a ranked result page.
type AskResult struct {
	Action *Action               `json:"action,omitempty"`
	Items  []*database.MediaItem `json:"items"`
	Total  int                   `json:"total"`
}

// Page is offset pagination input.
type Page struct {
	Limit  int
	Offset int
}

// Resolver executes structured and natural-language searches.
type Resolver struct {
	store      *database.Store
	embedder   ai.TextEmbedder
	cfg        config.SearchConfig
	index      *database.HNSWIndex
	indexScope string
}

// NewResolver creates a resolver. The text embedder powers the semantic
// fallback.
func NewResolver(store *database.Store, embedder ai.TextEmbedder, cfg config.SearchConfig) *Resolver {
	return &Resolver{store: store, embedder: embedder, cfg: cfg}
}

// EnableHNSW turns on in-memory ANN acceleration for unfiltered semantic
// queries. The index holds a single scope's embeddings; queries for any
// other scope keep using the database.
func (r *Resolver) EnableHNSW(index *database.HNSWIndex, scope string) {
	r.index = index
	r.indexScope = scope
}

func (r *Resolver) clampPage(page Page) Page {
	if page.Limit <= 0 {
		page.Limit = r.cfg.DefaultLimit
	}
	if page.Limit > r.cfg.MaxLimit {
		page.Limit = r.cfg.MaxLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	return page
}

// Search runs a structured query with stable offset pagination.
func (r *Resolver) Search(ctx context.Context, scope string, filter database.SearchFilter, page Page) ([]*database.MediaItem, int, error) {
	page = r.clampPage(page)
	return r.store.Media.Search(ctx, scope, filter, page.Limit, page.Offset)
}

var (
	createAlbumRe = regexp.MustCompile(`(?i)^(?:please )?(?:create|make|add)(?: a| an)?(?: new)? (?:album|folder)(?: called| named)? ["']?(.+?)["']?[.!]?$`)
	deleteAlbumRe = regexp.MustCompile(`(?i)^(?:please )?(?:delete|remove)(?: the)? (?:album|folder)(?: called| named)? ["']?(.+?)["']?[.!]?$`)
	saveSearchRe  = regexp.MustCompile(`(?i)^save (?:this )?search(?: for (.+?))? as ["']?(.+?)["']?[.!]?$`)
	statsRe       = regexp.MustCompile(`(?i)how many (?:photos|pictures|videos|files|items)`)
	helpRe        = regexp.MustCompile(`(?i)^\s*(?:help|what can you do)\s*\??\s*$`)
)

// Ask interprets free text: commands first, then filter extraction with a
// semantic fallback. Unrecognized text never errors.
func (r *Resolver) Ask(ctx context.Context, scope, text string) (*AskResult, error) {
	text = strings.TrimSpace(text)

	if m := createAlbumRe.FindStringSubmatch(text); m != nil {
		return r.createAlbum(ctx, scope, m[1])
	}
	if m := deleteAlbumRe.FindStringSubmatch(text); m != nil {
		return r.deleteAlbum(ctx, scope, m[1])
	}
	if m := saveSearchRe.FindStringSubmatch(text); m != nil {
		return r.saveSearch(ctx, scope, m[1], m[2])
	}
	if statsRe.MatchString(text) {
		return r.stats(ctx, scope)
	}
	if helpRe.MatchString(text) {
		return &AskResult{Action: &Action{
			Type: ActionHelp,
			Message: "Try: \"find photos with dogs\", \"videos from summer 2023\", " +
				"\"favorites of Anna\", \"create album Trips\", \"save search for beaches as Beaches\", " +
				"or \"how many photos do I have\".",
		}}, nil
	}

	filter, leftover, err := r.extractFilters(ctx, scope, text)
	if err != nil {
		return nil, err
	}

	if leftover == "" {
		items, total, err := r.Search(ctx, scope, filter, Page{})
		if err != nil {
			return nil, err
		}
		return &AskResult{Items: items, Total: total}, nil
	}

	return r.semantic(ctx, scope, filter, leftover)
}

func (r *Resolver) createAlbum(ctx context.Context, scope, name string) (*AskResult, error) {
	err := r.store.Albums.SaveSmartAlbum(ctx, &database.SmartAlbum{Scope: scope, Name: name})
	if err != nil {
		return nil, fmt.Errorf("create album: %w", err)
	}
	return &AskResult{Action: &Action{
		Type:    ActionCreateAlbum,
		Name:    name,
		Message: fmt.Sprintf("Album %q created.", name),
	}}, nil
}

func (r *Resolver) deleteAlbum(ctx context.Context, scope, name string) (*AskResult, error) {
	err := r.store.Albums.DeleteSmartAlbum(ctx, scope, name)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("delete album: %w", err)
	}
	msg := fmt.Sprintf("Album %q deleted.", name)
	if errors.Is(err, database.ErrNotFound) {
		msg = fmt.Sprintf("No album named %q.", name)
	}
	return &AskResult{Action: &Action{Type: ActionDeleteAlbum, Name: name, Message: msg}}, nil
}

func (r *Resolver) saveSearch(ctx context.Context, scope, query, name string) (*AskResult, error) {
	err := r.store.Albums.SaveSmartAlbum(ctx, &database.SmartAlbum{Scope: scope, Name: name, Query: query})
	if err != nil {
		return nil, fmt.Errorf("save search: %w", err)
	}
	return &AskResult{Action: &Action{
		Type:    ActionSaveSearch,
		Name:    name,
		Query:   query,
		Message: fmt.Sprintf("Search saved as %q.", name),
	}}, nil
}

func (r *Resolver) stats(ctx context.Context, scope string) (*AskResult, error) {
	photos, videos, err := r.store.Media.Count(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("count media: %w", err)
	}
	return &AskResult{Action: &Action{
		Type:    ActionStats,
		Message: fmt.Sprintf("Your library has %d photos and %d videos.", photos, videos),
	}}, nil
}

var months = map[string]time.Month{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

// seasons map to inclusive month spans; winter crosses the year boundary.
var seasons = map[string][2]time.Month{
	"spring": {3, 5},
	"summer": {6, 8},
	"fall":   {9, 11},
	"autumn": {9, 11},
	"winter": {12, 2},
}

var stopwords = map[string]bool{
	"find": true, "show": true, "me": true, "all": true, "my": true, "the": true,
	"a": true, "an": true, "of": true, "in": true, "from": true, "with": true,
	"and": true, "or": true, "taken": true, "during": true, "that": true,
	"have": true, "has": true, "are": true, "is": true, "do": true, "i": true,
	"please": true, "some": true, "any": true, "for": true, "at": true, "on": true,
}

// extractFilters pulls structured criteria out of the text and returns the
// remaining words for semantic search.
func (r *Resolver) extractFilters(ctx context.Context, scope, text string) (database.SearchFilter, string, error) {
	var filter database.SearchFilter

	folded := Fold(text)

	// Person names match as whole phrases before tokenization.
	persons, err := r.store.Persons.ListByScope(ctx, scope)
	if err != nil {
		return filter, "", fmt.Errorf("list persons: %w", err)
	}
	for _, p := range persons {
		if p.Name == "" {
			continue
		}
		name := Fold(p.Name)
		if name != "" && strings.Contains(folded, name) {
			filter.PersonID = p.ID
			folded = strings.ReplaceAll(folded, name, " ")
			break
		}
	}

	year := 0
	var month, seasonStart, seasonEnd time.Month

	var leftover []string
	for _, raw := range strings.Fields(folded) {
		word := strings.Trim(raw, ".,!?\"'()")
		if word == "" {
			continue
		}

		if n, err := strconv.Atoi(word); err == nil && n >= 1970 && n <= time.Now().Year()+1 && year == 0 {
			year = n
			continue
		}
		if m, ok := months[word]; ok && month == 0 {
			month = m
			continue
		}
		if span, ok := seasons[word]; ok && seasonStart == 0 {
			seasonStart, seasonEnd = span[0], span[1]
			continue
		}

		switch word {
		case "video", "videos", "movie", "movies", "clip", "clips":
			filter.Kind = database.KindVideo
			continue
		case "photo", "photos", "picture", "pictures", "image", "images", "pic", "pics":
			filter.Kind = database.KindPhoto
			continue
		case "favorite", "favorites", "favourite", "favourites", "starred":
			fav := true
			filter.Favorite = &fav
			continue
		}

		if stopwords[word] {
			continue
		}
		leftover = append(leftover, word)
	}

	filter.From, filter.To = dateRange(year, month, seasonStart, seasonEnd)
	return filter, strings.Join(leftover, " "), nil
}

// dateRange builds a [From, To) window out of the extracted year, month and
// season. A month or season without a year means the current year.
func dateRange(year int, month, seasonStart, seasonEnd time.Month) (*time.Time, *time.Time) {
	if year == 0 && month == 0 && seasonStart == 0 {
		return nil, nil
	}
	if year == 0 {
		year = time.Now().Year()
	}

	switch {
	case month != 0:
		from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 1, 0)
		return &from, &to
	case seasonStart != 0:
		from := time.Date(year, seasonStart, 1, 0, 0, 0, 0, time.UTC)
		endYear := year
		if seasonEnd < seasonStart {
			endYear++
		}
		to := time.Date(endYear, seasonEnd, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return &from, &to
	default:
		from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(1, 0, 0)
		return &from, &to
	}
}

// semantic ranks media by embedding similarity to the leftover text, with
// the structured filter applied as a candidate pre-filter. Backend trouble
// degrades to a structured-only answer instead of an error.
func (r *Resolver) semantic(ctx context.Context, scope string, filter database.SearchFilter, text string) (*AskResult, error) {
	limit := r.cfg.DefaultLimit

	query, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		log.Printf("search: text embedding: %v", err)
		items, total, err := r.Search(ctx, scope, filter, Page{})
		if err != nil {
			return nil, err
		}
		return &AskResult{Items: items, Total: total}, nil
	}

	var allowed []string
	if !filter.Empty() {
		candidates, _, err := r.store.Media.Search(ctx, scope, filter, r.cfg.MaxLimit, 0)
		if err != nil {
			return nil, fmt.Errorf("pre-filter candidates: %w", err)
		}
		allowed = make([]string, 0, len(candidates))
		for _, c := range candidates {
			allowed = append(allowed, c.ID)
		}
		if len(allowed) == 0 {
			return &AskResult{Items: nil, Total: 0}, nil
		}
	}

	var ranked []database.SimilarResult
	if r.index != nil && r.indexScope == scope && allowed == nil {
		// Over-fetch so enough candidates survive the deleted-item filter.
		ids, distances, err := r.index.Search(query, limit*database.HNSWSearchMultiplier)
		if err == nil {
			for i, id := range ids {
				ranked = append(ranked, database.SimilarResult{MediaID: id, Similarity: 1 - distances[i]})
			}
		} else {
			log.Printf("search: hnsw fallback: %v", err)
		}
	}
	if ranked == nil {
		ranked, err = r.store.Embeddings.FindSimilar(ctx, scope, query, limit, allowed)
		if err != nil {
			return nil, fmt.Errorf("similarity search: %w", err)
		}
	}

	items := make([]*database.MediaItem, 0, len(ranked))
	for _, res := range ranked {
		item, err := r.store.Media.Get(ctx, res.MediaID)
		if err != nil {
			continue // deleted since indexing
		}
		if item.DeletedAt != nil || item.Scope != scope {
			continue
		}
		items = append(items, item)
		if len(items) == limit {
			break
		}
	}
	return &AskResult{Items: items, Total: len(items)}, nil
}
