package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a mock implementation of the storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Store(ctx context.Context, name string, data []byte) (string, error) {
	args := m.Called(name, data)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) Retrieve(ctx context.Context, name string) ([]byte, error) {
	args := m.Called(name)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorage) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(prefix)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, name string) error {
	args := m.Called(name)
	return args.Error(0)
}

// MockNotificationService is a mock implementation of the notification service
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SendReport(report *models.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

func (m *MockNotificationService) SendAlert(alert *models.Alert) error {
	args := m.Called(alert)
	return args.Error(0)
}

// fakeSource serves canned data per content id
type fakeSource struct {
	mu         sync.Mutex
	duration   map[string]int
	messages   map[string][]models.ReactionMessage
	comments   map[string][]models.Comment
	msgErr     error
	commentErr error
	ranges     []models.TimeRange
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		duration: make(map[string]int),
		messages: make(map[string][]models.ReactionMessage),
		comments: make(map[string][]models.Comment),
	}
}

func (f *fakeSource) GetName() string { return "fake" }

func (f *fakeSource) FetchDuration(ctx context.Context, id string) (int, error) {
	d, ok := f.duration[id]
	if !ok {
		return 0, errors.New("metadata unavailable")
	}
	return d, nil
}

func (f *fakeSource) FetchMessages(ctx context.Context, id string, r models.TimeRange) ([]models.ReactionMessage, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, r)
	f.mu.Unlock()
	if f.msgErr != nil {
		return nil, f.msgErr
	}

	var out []models.ReactionMessage
	for _, m := range f.messages[id] {
		if m.TimestampSec >= r.FromSec && m.TimestampSec < r.ToSec {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchTopComments(ctx context.Context, id string, n int) ([]models.Comment, error) {
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	c := f.comments[id]
	if len(c) > n {
		c = c[:n]
	}
	return c, nil
}

// topicCompleter answers with the first known topic word found in the prompt
type topicCompleter struct {
	topics []string
}

func (c topicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	for _, t := range c.topics {
		if strings.Contains(prompt, t) {
			return "viewers talk about " + t, nil
		}
	}
	return "nothing special", nil
}

func burst(text string, perBucket int, starts ...int) []models.ReactionMessage {
	var out []models.ReactionMessage
	for _, s := range starts {
		for i := 0; i < perBucket; i++ {
			out = append(out, models.ReactionMessage{TimestampSec: s + i%15, Text: text})
		}
	}
	return out
}

// quietMiddle has dense reactions at both ends of a 120s video
func quietMiddle(src *fakeSource, id string) {
	src.duration[id] = 120
	src.messages[id] = append(burst("alpha boss fight", 10, 0, 15), burst("omega credits roll", 10, 90, 105)...)
	src.comments[id] = []models.Comment{
		{Text: "the boss fight was insane", LikeCount: 50},
		{Text: "unrelated words here", LikeCount: 10},
	}
}

func newTestService(src *fakeSource, store *MockStorage, notifier *MockNotificationService) *Service {
	opts := Options{Defaults: config.DefaultParams(), SummaryConcurrency: 2, CompletionTimeout: time.Second}
	completer := topicCompleter{topics: []string{"alpha", "omega"}}
	if store == nil && notifier == nil {
		return NewService(opts, src, completer, nil, nil)
	}
	return NewService(opts, src, completer, store, notifier)
}

func TestAnalyze_QuietMiddle(t *testing.T) {
	src := newFakeSource()
	quietMiddle(src, "BV1test")

	store := &MockStorage{}
	store.On("Store",
		mock.MatchedBy(func(name string) bool { return strings.HasPrefix(name, "danmaku_BV1test_") && strings.HasSuffix(name, ".json") }),
		mock.MatchedBy(func(data []byte) bool {
			var a models.ExportArtifact
			return json.Unmarshal(data, &a) == nil && a.ContentID == "BV1test" && len(a.Intervals) == 2
		}),
	).Return("/out/danmaku_BV1test.json", nil)

	s := newTestService(src, store, &MockNotificationService{})
	result, err := s.Analyze(context.Background(), "BV1test", config.Params{})
	require.NoError(t, err)

	require.Len(t, result.Segments, 2)
	cut := result.Segments[0].EndSec
	assert.GreaterOrEqual(t, cut, 30)
	assert.Less(t, cut, 90)
	assert.Equal(t, cut, result.Segments[1].StartSec)
	assert.Equal(t, 120, result.Segments[1].EndSec)

	// summaries stay with their own segment regardless of completion order
	assert.Equal(t, "viewers talk about alpha", result.Segments[0].Summary)
	assert.Equal(t, "viewers talk about omega", result.Segments[1].Summary)

	assert.Equal(t, []models.Comment{{Text: "the boss fight was insane", LikeCount: 50}}, result.Segments[0].MatchedComments)
	assert.Equal(t, []models.Comment{{Text: "unrelated words here", LikeCount: 10}}, result.Unmatched)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, result.RunID, result.Artifact.RunID)
	assert.Equal(t, "/out/danmaku_BV1test.json", result.Location)
	assert.Equal(t, 40, result.Artifact.MessageCount)
	assert.Equal(t, "00:00", result.Artifact.Intervals[0].StartTS)
	assert.Equal(t, []models.TimeRange{{FromSec: 0, ToSec: 135}}, src.ranges)
	store.AssertExpectations(t)
}

func TestAnalyze_Failures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(src *fakeSource)
		target error
		reason string
	}{
		{
			name:   "Message fetch fails",
			setup:  func(src *fakeSource) { src.msgErr = errors.New("connection reset") },
			target: ErrSourceFetch,
			reason: "source_fetch",
		},
		{
			name:   "No messages",
			setup:  func(src *fakeSource) { src.duration["BV1test"] = 120 },
			target: ErrInsufficientData,
			reason: "insufficient_data",
		},
		{
			name: "Only blank messages",
			setup: func(src *fakeSource) {
				src.duration["BV1test"] = 120
				src.messages["BV1test"] = []models.ReactionMessage{{TimestampSec: 10, Text: "   "}}
			},
			target: ErrTooSparse,
			reason: "too_sparse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			tt.setup(src)
			store := &MockStorage{}

			s := newTestService(src, store, &MockNotificationService{})
			result, err := s.Analyze(context.Background(), "BV1test", config.Params{})

			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.target)
			store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)

			var m Metrics
			require.NoError(t, json.Unmarshal([]byte(s.GetMetrics()), &m))
			assert.Equal(t, 1, m.Failures)
			assert.Equal(t, 1, m.FailureReasons[tt.reason])
		})
	}
}

func TestAnalyze_SourceFetchWrapsCause(t *testing.T) {
	src := newFakeSource()
	cause := errors.New("connection reset")
	src.msgErr = cause

	_, err := newTestService(src, nil, nil).Analyze(context.Background(), "BV1test", config.Params{})

	assert.ErrorIs(t, err, ErrSourceFetch)
	assert.ErrorIs(t, err, cause)
}

func TestAnalyze_DegradesOnMetadataAndComments(t *testing.T) {
	src := newFakeSource()
	quietMiddle(src, "BV1test")
	delete(src.duration, "BV1test")
	src.commentErr = errors.New("comments disabled")

	result, err := newTestService(src, nil, nil).Analyze(context.Background(), "BV1test", config.Params{MaxDurationSec: 120})
	require.NoError(t, err)

	assert.Equal(t, DefaultDurationSec, result.DurationSec)
	assert.Equal(t, 120, result.AnalyzedDurationSec)
	assert.Equal(t, []models.TimeRange{{FromSec: 0, ToSec: 120}}, src.ranges)
	assert.Empty(t, result.Comments)
	assert.Empty(t, result.Location)
	assert.Contains(t, FormatReport(result), "(first 120s only)")
}

func TestAnalyze_CountsTrailingMessages(t *testing.T) {
	src := newFakeSource()
	src.duration["BV1tail"] = 120
	for sec := 0; sec <= 125; sec += 5 {
		src.messages["BV1tail"] = append(src.messages["BV1tail"], models.ReactionMessage{TimestampSec: sec, Text: "steady chatter"})
	}
	src.messages["BV1tail"] = append(src.messages["BV1tail"], models.ReactionMessage{TimestampSec: 140, Text: "past the last bucket"})

	result, err := newTestService(src, nil, nil).Analyze(context.Background(), "BV1tail", config.Params{})
	require.NoError(t, err)

	assert.Equal(t, []models.TimeRange{{FromSec: 0, ToSec: 135}}, src.ranges)
	assert.Equal(t, 26, result.MessageCount)

	total := 0
	for _, seg := range result.Segments {
		total += seg.TotalCount
	}
	assert.Equal(t, 26, total)
	assert.Equal(t, 120, result.Segments[len(result.Segments)-1].EndSec)
}

// inFlightCompleter records the largest number of concurrent requests
type inFlightCompleter struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (c *inFlightCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	n := c.current.Add(1)
	defer c.current.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return "a sentence", nil
}

func TestAnalyze_SummaryConcurrencyIsTotal(t *testing.T) {
	src := newFakeSource()
	src.duration["BV1busy"] = 120
	// distinct texts keep every segment above the merge threshold
	i := 0
	for _, start := range []int{0, 15, 90, 105} {
		for n := 0; n < 20; n++ {
			text := string([]rune{rune(0x4E00 + i*4), rune(0x4E01 + i*4), rune(0x4E02 + i*4), rune(0x4E03 + i*4)})
			src.messages["BV1busy"] = append(src.messages["BV1busy"], models.ReactionMessage{TimestampSec: start + n%15, Text: text})
			i++
		}
	}

	completer := &inFlightCompleter{}
	opts := Options{Defaults: config.DefaultParams(), SummaryConcurrency: 2, CompletionTimeout: time.Second}
	result, err := NewService(opts, src, completer, nil, nil).Analyze(context.Background(), "BV1busy", config.Params{})
	require.NoError(t, err)

	require.Len(t, result.Segments, 2)
	for _, seg := range result.Segments {
		assert.Equal(t, "a sentence", seg.Summary)
	}
	assert.LessOrEqual(t, completer.peak.Load(), int32(2))
}

func TestAnalyze_NegativeCapOverridesDefault(t *testing.T) {
	src := newFakeSource()
	quietMiddle(src, "BV1test")
	defaults := config.DefaultParams()
	defaults.MaxDurationSec = 60

	s := NewService(Options{Defaults: defaults}, src, nil, nil, nil)

	capped, err := s.Analyze(context.Background(), "BV1test", config.Params{})
	require.NoError(t, err)
	assert.Equal(t, 60, capped.AnalyzedDurationSec)

	full, err := s.Analyze(context.Background(), "BV1test", config.Params{MaxDurationSec: -1})
	require.NoError(t, err)
	assert.Equal(t, 120, full.AnalyzedDurationSec)
}

func TestAnalyze_StorageFailureIsNotFatal(t *testing.T) {
	src := newFakeSource()
	quietMiddle(src, "BV1test")
	store := &MockStorage{}
	store.On("Store", mock.Anything, mock.Anything).Return("", errors.New("disk full"))

	result, err := newTestService(src, store, &MockNotificationService{}).Analyze(context.Background(), "BV1test", config.Params{})

	require.NoError(t, err)
	assert.Empty(t, result.Location)
}

func TestAnalyze_WithoutCompleter(t *testing.T) {
	src := newFakeSource()
	quietMiddle(src, "BV1test")

	s := NewService(Options{}, src, nil, nil, nil)
	result, err := s.Analyze(context.Background(), "BV1test", config.Params{})
	require.NoError(t, err)

	for _, seg := range result.Segments {
		assert.Empty(t, seg.Summary)
	}
}

func TestAnalyzeText(t *testing.T) {
	src := newFakeSource()
	quietMiddle(src, "BV1ok")
	src.duration["BV1empty"] = 60
	store := &MockStorage{}
	store.On("Store", mock.Anything, mock.Anything).Return("/out/a.json", nil)

	s := newTestService(src, store, &MockNotificationService{})
	ctx := context.Background()

	text := s.AnalyzeText(ctx, "BV1ok", config.Params{})
	assert.True(t, strings.HasPrefix(text, "Full data written to /out/a.json\n\n[Danmaku segments] BV1ok"))
	assert.Contains(t, text, "#1 00:00-")
	assert.Contains(t, text, "Summary: viewers talk about alpha")
	assert.Contains(t, text, "Comment [likes 50] the boss fight was insane")
	assert.Contains(t, text, "Other top comments:\n  [likes 10] unrelated words here")

	assert.Equal(t, "No danmaku found for BV1empty, cannot analyze.", s.AnalyzeText(ctx, "BV1empty", config.Params{}))

	src.msgErr = errors.New("timeout")
	assert.True(t, strings.HasPrefix(s.AnalyzeText(ctx, "BV1ok", config.Params{}), "Analysis failed: "))
}

func TestAnalyzeWatchlist(t *testing.T) {
	src := newFakeSource()
	quietMiddle(src, "BV1ok")
	src.duration["BV1empty"] = 60

	notifier := &MockNotificationService{}
	notifier.On("SendReport", mock.MatchedBy(func(r *models.Report) bool {
		return r.ContentID == "BV1ok" && r.Artifact != nil && strings.Contains(r.Text, "BV1ok")
	})).Return(nil)
	notifier.On("SendAlert", mock.MatchedBy(func(a *models.Alert) bool {
		return a.ContentID == "BV1empty" && a.Type == "info" && a.ID != ""
	})).Return(nil)

	s := NewService(Options{}, src, topicCompleter{}, nil, notifier)
	err := s.AnalyzeWatchlist(context.Background(), []string{"BV1ok", "BV1empty"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "BV1empty")
	assert.NotContains(t, err.Error(), "BV1ok")
	notifier.AssertExpectations(t)

	var m Metrics
	require.NoError(t, json.Unmarshal([]byte(s.GetMetrics()), &m))
	assert.Equal(t, 2, m.AnalysesRun)
	assert.Equal(t, 1, m.Failures)
	assert.Equal(t, 2, m.SegmentsProduced)
	assert.Equal(t, "BV1empty", m.LastContentID)
}

func TestArtifactName(t *testing.T) {
	at := time.Date(2026, 5, 4, 13, 2, 9, 0, time.UTC)

	assert.Equal(t, "danmaku_BV1xx411c7mD_20260504_130209.json", ArtifactName("BV1xx411c7mD", at))
	assert.Equal(t, "danmaku_a_b_20260504_130209.json", ArtifactName("a/../b", at))
}

func TestCommentsFor(t *testing.T) {
	all := []models.Comment{{Text: "a", LikeCount: 9}, {Text: "b", LikeCount: 5}, {Text: "c", LikeCount: 1}}
	seg := models.Segment{MatchedComments: []models.Comment{{Text: "c", LikeCount: 1}}}

	assert.Equal(t, []models.Comment{
		{Text: "c", LikeCount: 1},
		{Text: "a", LikeCount: 9},
		{Text: "b", LikeCount: 5},
	}, commentsFor(seg, all))
}
