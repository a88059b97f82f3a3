package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protowire"
)

// DefaultBilibiliBaseURL is the public Bilibili API host
const DefaultBilibiliBaseURL = "https://api.bilibili.com"

const (
	commentPageSize  = 20
	commentTextRunes = 200
)

// BilibiliSource implements all source capabilities against the Bilibili web API
type BilibiliSource struct {
	client *resty.Client

	mu    sync.Mutex
	views map[string]videoView
}

// Ensure BilibiliSource implements Source
var _ Source = (*BilibiliSource)(nil)

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type videoView struct {
	Aid      int64 `json:"aid"`
	Cid      int64 `json:"cid"`
	Duration int   `json:"duration"`
	Pages    []struct {
		Cid      int64 `json:"cid"`
		Duration int   `json:"duration"`
	} `json:"pages"`
}

type replyPage struct {
	Replies []struct {
		Like    int `json:"like"`
		Content struct {
			Message string `json:"message"`
		} `json:"content"`
	} `json:"replies"`
}

// danmakuElem is the subset of a DanmakuElem protobuf message the bot reads
type danmakuElem struct {
	ID         int64
	ProgressMs int64
	Content    string
}

// NewBilibiliSource creates a Bilibili source. sessdata is the optional login
// cookie; an empty baseURL uses the public API host.
func NewBilibiliSource(baseURL, sessdata string) *BilibiliSource {
	if baseURL == "" {
		baseURL = DefaultBilibiliBaseURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "Danmaku-Digest-Bot/1.0").
		SetHeader("Referer", "https://www.bilibili.com")
	if sessdata != "" {
		client.SetCookie(&http.Cookie{Name: "SESSDATA", Value: sessdata})
	}

	return &BilibiliSource{
		client: client,
		views:  make(map[string]videoView),
	}
}

func (b *BilibiliSource) GetName() string {
	return "bilibili"
}

// FetchDuration returns the video duration in seconds
func (b *BilibiliSource) FetchDuration(ctx context.Context, contentID string) (int, error) {
	view, err := b.view(ctx, contentID)
	if err != nil {
		return 0, err
	}
	if view.Duration > 0 {
		return view.Duration, nil
	}
	if len(view.Pages) > 0 && view.Pages[0].Duration > 0 {
		return view.Pages[0].Duration, nil
	}
	return 0, fmt.Errorf("no duration reported for %s", contentID)
}

// FetchMessages downloads the danmaku segments overlapping r and keeps the
// messages inside it, ordered by timestamp.
func (b *BilibiliSource) FetchMessages(ctx context.Context, contentID string, r models.TimeRange) ([]models.ReactionMessage, error) {
	view, err := b.view(ctx, contentID)
	if err != nil {
		return nil, err
	}
	cid := view.Cid
	if cid == 0 && len(view.Pages) > 0 {
		cid = view.Pages[0].Cid
	}
	if cid == 0 {
		return nil, fmt.Errorf("no cid for %s", contentID)
	}

	first, last := SegmentRange(r)
	var messages []models.ReactionMessage

	for idx := first; idx <= last; idx++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		elems, err := b.fetchSegment(ctx, cid, idx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch danmaku segment %d: %w", idx, err)
		}
		logrus.Debugf("Fetched %d danmaku from segment %d of %s", len(elems), idx, contentID)

		for _, e := range elems {
			sec := int(e.ProgressMs / 1000)
			if sec < r.FromSec || (r.ToSec > r.FromSec && sec >= r.ToSec) {
				continue
			}
			messages = append(messages, models.ReactionMessage{TimestampSec: sec, Text: e.Content})
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].TimestampSec < messages[j].TimestampSec
	})
	return messages, nil
}

// FetchTopComments returns up to n comments in like order, paging as needed
func (b *BilibiliSource) FetchTopComments(ctx context.Context, contentID string, n int) ([]models.Comment, error) {
	if n <= 0 {
		return nil, nil
	}
	view, err := b.view(ctx, contentID)
	if err != nil {
		return nil, err
	}

	var comments []models.Comment
	maxPages := (n+commentPageSize-1)/commentPageSize + 1
	for page := 1; len(comments) < n && page <= maxPages; page++ {
		var replies replyPage
		params := map[string]string{
			"type": "1",
			"oid":  strconv.FormatInt(view.Aid, 10),
			"sort": "1",
			"pn":   strconv.Itoa(page),
			"ps":   strconv.Itoa(commentPageSize),
		}
		if err := b.getJSON(ctx, "/x/v2/reply", params, &replies); err != nil {
			if len(comments) > 0 {
				logrus.Debugf("Stopping comment paging for %s at page %d: %v", contentID, page, err)
				break
			}
			return nil, fmt.Errorf("failed to fetch comments: %w", err)
		}
		if len(replies.Replies) == 0 {
			break
		}

		for _, r := range replies.Replies {
			text := strings.TrimSpace(r.Content.Message)
			if text == "" {
				continue
			}
			if runes := []rune(text); len(runes) > commentTextRunes {
				text = string(runes[:commentTextRunes])
			}
			comments = append(comments, models.Comment{Text: text, LikeCount: r.Like})
		}
	}

	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].LikeCount > comments[j].LikeCount
	})
	if len(comments) > n {
		comments = comments[:n]
	}
	return comments, nil
}

// view resolves and caches the video's ids and duration
func (b *BilibiliSource) view(ctx context.Context, contentID string) (videoView, error) {
	b.mu.Lock()
	v, ok := b.views[contentID]
	b.mu.Unlock()
	if ok {
		return v, nil
	}

	params := map[string]string{"bvid": contentID}
	if aid, ok := parseAid(contentID); ok {
		params = map[string]string{"aid": strconv.FormatInt(aid, 10)}
	}
	if err := b.getJSON(ctx, "/x/web-interface/view", params, &v); err != nil {
		return videoView{}, fmt.Errorf("failed to get video info for %s: %w", contentID, err)
	}

	b.mu.Lock()
	b.views[contentID] = v
	b.mu.Unlock()
	return v, nil
}

func (b *BilibiliSource) getJSON(ctx context.Context, path string, params map[string]string, out interface{}) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("bilibili API returned status %d", resp.StatusCode())
	}

	var env apiEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("failed to parse bilibili response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("bilibili API error %d: %s", env.Code, env.Message)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse bilibili data: %w", err)
	}
	return nil
}

func (b *BilibiliSource) fetchSegment(ctx context.Context, cid int64, index int) ([]danmakuElem, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"type":          "1",
			"oid":           strconv.FormatInt(cid, 10),
			"segment_index": strconv.Itoa(index),
		}).
		Get("/x/v2/dm/web/seg.so")
	if err != nil {
		return nil, err
	}
	// Segments past the end of the video come back empty or 304
	if resp.StatusCode() == http.StatusNotModified || resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("danmaku API returned status %d", resp.StatusCode())
	}
	return decodeSegment(resp.Body())
}

// decodeSegment parses a DmSegMobileReply: field 1 holds repeated DanmakuElem
func decodeSegment(b []byte) ([]danmakuElem, error) {
	var elems []danmakuElem
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		if num == 1 && typ == protowire.BytesType {
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			elem, err := decodeElem(raw)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(elem.Content) != "" {
				elems = append(elems, elem)
			}
			b = b[m:]
			continue
		}

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return nil, protowire.ParseError(m)
		}
		b = b[m:]
	}
	return elems, nil
}

// decodeElem reads id (1), progress in ms (2) and content (7), skipping the rest
func decodeElem(b []byte) (danmakuElem, error) {
	var e danmakuElem
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return e, protowire.ParseError(m)
			}
			e.ID = int64(v)
			b = b[m:]
		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return e, protowire.ParseError(m)
			}
			e.ProgressMs = int64(int32(v))
			b = b[m:]
		case num == 7 && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return e, protowire.ParseError(m)
			}
			e.Content = v
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return e, protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return e, nil
}

// parseAid accepts "av12345" style ids
func parseAid(contentID string) (int64, bool) {
	lower := strings.ToLower(contentID)
	if !strings.HasPrefix(lower, "av") {
		return 0, false
	}
	aid, err := strconv.ParseInt(lower[2:], 10, 64)
	if err != nil {
		return 0, false
	}
	return aid, true
}
