// Package anki talks to a running Anki through the AnkiConnect add-on. The
// Client is the collection source of a batch (decks, notes, field writes)
// and the media store that receives finished artifacts.
package anki

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/anki-speech/internal/core"
)

const (
	// DefaultURL is where AnkiConnect listens by default.
	DefaultURL = "http://localhost:8765"

	apiVersion       = 6
	cardsInfoBatch   = 500
	maxResponseBytes = 256 << 20
)

// AnkiConnect actions.
const (
	actionVersion          = "version"
	actionDeckNames        = "deckNames"
	actionFindCards        = "findCards"
	actionCardsInfo        = "cardsInfo"
	actionUpdateNoteFields = "updateNoteFields"
	actionStoreMediaFile   = "storeMediaFile"
	actionRetrieveMedia    = "retrieveMediaFile"
)

const (
	errFmtAction       = "anki %s: %w"
	errFmtKind         = "%w: %w"
	errFmtMarshal      = "marshal request: %w"
	errFmtNewRequest   = "create request: %w"
	errFmtSend         = "send request to %s: %w"
	errFmtStatus       = "unexpected status %s"
	errFmtDecode       = "decode response: %w"
	errFmtRemote       = "%w: %s"
	errFmtNoteID       = "invalid note id %q: %w"
	errFmtMediaDecode  = "decode media %s: %w"
	errMsgMediaMissing = "media file not found"
)

// ErrRemote is returned when AnkiConnect answers with an error message.
var ErrRemote = errors.New("ankiconnect error")

// ErrMediaNotFound is returned by Download for an unknown media file.
var ErrMediaNotFound = errors.New(errMsgMediaMissing)

// Client is an AnkiConnect client. It implements core.CollectionSource and
// core.ObjectStore.
type Client struct {
	httpClient *http.Client
	url        string
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Card is one entry of a cardsInfo answer.
type Card struct {
	CardID    int64                `json:"cardId"`
	NoteID    int64                `json:"note"`
	DeckName  string               `json:"deckName"`
	ModelName string               `json:"modelName"`
	Fields    map[string]CardField `json:"fields"`
}

// CardField is a field value with its position in the note type.
type CardField struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NewClient creates a client for the AnkiConnect endpoint at url.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}

	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Version probes the connection and returns the AnkiConnect API version.
func (c *Client) Version(ctx context.Context) (int, error) {
	var version int

	callErr := c.call(ctx, actionVersion, nil, &version)
	if callErr != nil {
		return 0, callErr
	}

	return version, nil
}

// ListCollections returns the deck names.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var decks []string

	callErr := c.call(ctx, actionDeckNames, nil, &decks)
	if callErr != nil {
		return nil, callErr
	}

	sort.Strings(decks)

	return decks, nil
}

// Cards returns the raw cards of a deck in AnkiConnect order.
func (c *Client) Cards(ctx context.Context, deck string) ([]Card, error) {
	var cardIDs []int64

	findErr := c.call(ctx, actionFindCards, map[string]string{"query": DeckQuery(deck)}, &cardIDs)
	if findErr != nil {
		return nil, findErr
	}

	cards := make([]Card, 0, len(cardIDs))

	for start := 0; start < len(cardIDs); start += cardsInfoBatch {
		end := min(start+cardsInfoBatch, len(cardIDs))

		var batch []Card

		infoErr := c.call(ctx, actionCardsInfo, map[string][]int64{"cards": cardIDs[start:end]}, &batch)
		if infoErr != nil {
			return nil, infoErr
		}

		cards = append(cards, batch...)
	}

	return cards, nil
}

// ListUnits returns one unit per note of the deck. Cards of the same note
// share fields, so the note id is the write-back key.
func (c *Client) ListUnits(ctx context.Context, deck string) ([]core.ContentUnit, error) {
	cards, cardsErr := c.Cards(ctx, deck)
	if cardsErr != nil {
		return nil, cardsErr
	}

	seen := make(map[int64]bool, len(cards))
	units := make([]core.ContentUnit, 0, len(cards))

	for _, card := range cards {
		noteID := card.NoteID
		if noteID == 0 {
			noteID = card.CardID
		}

		if seen[noteID] {
			continue
		}

		seen[noteID] = true
		units = append(units, card.Unit(noteID))
	}

	return units, nil
}

// Unit converts a card to a content unit keyed by noteID.
func (card Card) Unit(noteID int64) core.ContentUnit {
	fields := make(map[string]string, len(card.Fields))
	for name, field := range card.Fields {
		fields[name] = field.Value
	}

	label := "note " + strconv.FormatInt(noteID, 10)
	if card.ModelName != "" {
		label += " (" + card.ModelName + ")"
	}

	return core.ContentUnit{
		ID:     strconv.FormatInt(noteID, 10),
		Label:  label,
		Fields: fields,
	}
}

// OrderedFieldNames returns the field names in note type order.
func (card Card) OrderedFieldNames() []string {
	names := make([]string, 0, len(card.Fields))
	for name := range card.Fields {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		return card.Fields[names[i]].Order < card.Fields[names[j]].Order
	})

	return names
}

// WriteField replaces one field of a note.
func (c *Client) WriteField(ctx context.Context, unitID, field, value string) error {
	noteID, parseErr := strconv.ParseInt(unitID, 10, 64)
	if parseErr != nil {
		return fmt.Errorf(errFmtAction, actionUpdateNoteFields,
			fmt.Errorf(errFmtKind, core.ErrCollectionAccess, fmt.Errorf(errFmtNoteID, unitID, parseErr)))
	}

	params := map[string]any{
		"note": map[string]any{
			"id":     noteID,
			"fields": map[string]string{field: value},
		},
	}

	return c.call(ctx, actionUpdateNoteFields, params, nil)
}

// Upload stores data in the collection's media folder under key.
func (c *Client) Upload(ctx context.Context, key string, data []byte) error {
	params := map[string]string{
		"filename": key,
		"data":     base64.StdEncoding.EncodeToString(data),
	}

	return c.callAs(ctx, core.ErrArtifactStore, actionStoreMediaFile, params, nil)
}

// Download reads a media file back.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	var result json.RawMessage

	callErr := c.callAs(ctx, core.ErrArtifactStore, actionRetrieveMedia, map[string]string{"filename": key}, &result)
	if callErr != nil {
		return nil, callErr
	}

	var encoded string
	if json.Unmarshal(result, &encoded) != nil || encoded == "" {
		return nil, fmt.Errorf(errFmtRemote, ErrMediaNotFound, key)
	}

	data, decodeErr := base64.StdEncoding.DecodeString(encoded)
	if decodeErr != nil {
		return nil, fmt.Errorf(errFmtMediaDecode, key, decodeErr)
	}

	return data, nil
}

// DeckQuery builds the search query selecting every card of deck.
func DeckQuery(deck string) string {
	escaped := strings.ReplaceAll(deck, `"`, `\"`)

	return `deck:"` + escaped + `"`
}

// call performs one collection action. Every failure wraps
// core.ErrCollectionAccess.
func (c *Client) call(ctx context.Context, action string, params, target any) error {
	return c.callAs(ctx, core.ErrCollectionAccess, action, params, target)
}

// callAs performs one action and wraps every failure in kind.
func (c *Client) callAs(ctx context.Context, kind error, action string, params, target any) error {
	result, callErr := c.do(ctx, action, params)
	if callErr != nil {
		return fmt.Errorf(errFmtAction, action, fmt.Errorf(errFmtKind, kind, callErr))
	}

	if target == nil {
		return nil
	}

	decodeErr := json.Unmarshal(result, target)
	if decodeErr != nil {
		return fmt.Errorf(errFmtAction, action, fmt.Errorf(errFmtKind, kind, fmt.Errorf(errFmtDecode, decodeErr)))
	}

	return nil
}

func (c *Client) do(ctx context.Context, action string, params any) (json.RawMessage, error) {
	body, marshalErr := json.Marshal(request{Action: action, Version: apiVersion, Params: params})
	if marshalErr != nil {
		return nil, fmt.Errorf(errFmtMarshal, marshalErr)
	}

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf(errFmtNewRequest, reqErr)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, sendErr := c.httpClient.Do(httpReq)
	if sendErr != nil {
		return nil, fmt.Errorf(errFmtSend, c.url, sendErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(errFmtStatus, resp.Status)
	}

	var decoded response

	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded)
	if decodeErr != nil {
		return nil, fmt.Errorf(errFmtDecode, decodeErr)
	}

	if decoded.Error != nil && *decoded.Error != "" {
		return nil, fmt.Errorf(errFmtRemote, ErrRemote, *decoded.Error)
	}

	return decoded.Result, nil
}
