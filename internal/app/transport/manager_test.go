package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

type fakeHarvester struct {
	name    string
	trickle bool
	block   bool
	err     error

	mu   sync.Mutex
	reqs []Request
}

func (f *fakeHarvester) Name() string { return f.name }
func (f *fakeHarvester) Trickle() bool { return f.trickle }

func (f *fakeHarvester) Harvest(ctx context.Context, req Request) ([]domain.Candidate, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Candidate{{IP: "192.0.2.1", Port: 10000 + req.Component, Type: domain.CandidateHost, Protocol: "udp"}}, nil
}

func (f *fakeHarvester) requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.reqs...)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []domain.Content
	err  error
}

func (s *fakeSender) SendTransportInfo(c domain.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, c)
	return nil
}

func audioVideo() []domain.Content {
	return []domain.Content{
		{Name: "audio", Media: domain.MediaAudio},
		{Name: "video", Media: domain.MediaVideo},
	}
}

func TestGenerationIncreasesAndIDsNeverRepeat(t *testing.T) {
	h := &fakeHarvester{name: "host"}
	m := NewManager(Options{Harvesters: []Harvester{h}, IDs: NewIDSource(), Timeout: time.Second})

	seen := map[string]bool{}
	last := -1
	for i := 0; i < 3; i++ {
		require.NoError(t, m.StartOfferHarvest(audioVideo(), nil))
		gen := m.Generation()
		assert.Greater(t, gen, last)
		last = gen

		contents, err := m.WrapupCandidateHarvest(context.Background())
		require.NoError(t, err)
		require.Len(t, contents, 2)
		for _, c := range contents {
			require.NotNil(t, c.Transport)
			for _, cand := range c.Transport.Candidates {
				assert.False(t, seen[cand.ID], "candidate id %s reused", cand.ID)
				seen[cand.ID] = true
				assert.Equal(t, gen, cand.Generation)
			}
		}
	}
	// 3 rounds, 2 contents, 2 components
	assert.Len(t, seen, 12)

	reqs := h.requests()
	require.Len(t, reqs, 12)
	assert.Equal(t, 2, reqs[0].Components)
	assert.Equal(t, last, reqs[len(reqs)-1].Generation)
}

func TestContentMissingFromAnswerIsSkipped(t *testing.T) {
	h := &fakeHarvester{name: "host"}
	m := NewManager(Options{Harvesters: []Harvester{h}, Components: 1})

	offer := audioVideo()
	answer := []domain.Content{{Name: "audio", Media: domain.MediaAudio}}
	require.NoError(t, m.StartCandidateHarvest(offer, answer, nil))
	contents, err := m.WrapupCandidateHarvest(context.Background())
	require.NoError(t, err)

	require.Len(t, contents, 1)
	assert.Equal(t, "audio", contents[0].Name)
	reqs := h.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.MediaAudio, reqs[0].Media)
	assert.Equal(t, domain.ComponentRTP, reqs[0].Component)
}

func TestTrickledCandidatesExcludedFromWrapup(t *testing.T) {
	host := &fakeHarvester{name: "host"}
	relay := &fakeHarvester{name: "relay", trickle: true}
	sender := &fakeSender{}
	m := NewManager(Options{Harvesters: []Harvester{host, relay}, Components: 1})

	require.NoError(t, m.StartOfferHarvest([]domain.Content{{Name: "audio", Media: domain.MediaAudio}}, sender))
	contents, err := m.WrapupCandidateHarvest(context.Background())
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	trickledID := sender.sent[0].Transport.Candidates[0].ID
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Transport.Candidates, 1)
	assert.NotEqual(t, trickledID, contents[0].Transport.Candidates[0].ID)
	assert.Equal(t, sender.sent[0].Transport.Ufrag, contents[0].Transport.Ufrag)
}

func TestTrickleFallsBackToWrapupWhenSendFails(t *testing.T) {
	relay := &fakeHarvester{name: "relay", trickle: true}
	sender := &fakeSender{err: errors.New("offline")}
	m := NewManager(Options{Harvesters: []Harvester{relay}, Components: 1})

	require.NoError(t, m.StartOfferHarvest([]domain.Content{{Name: "audio", Media: domain.MediaAudio}}, sender))
	contents, err := m.WrapupCandidateHarvest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, contents[0].Transport)
	assert.Len(t, contents[0].Transport.Candidates, 1)
}

func TestWrapupTimesOutWithPartialResult(t *testing.T) {
	host := &fakeHarvester{name: "host"}
	slow := &fakeHarvester{name: "slow", block: true}
	m := NewManager(Options{Harvesters: []Harvester{host, slow}, Components: 1, Timeout: 50 * time.Millisecond})

	require.NoError(t, m.StartOfferHarvest([]domain.Content{{Name: "audio", Media: domain.MediaAudio}}, nil))
	start := time.Now()
	contents, err := m.WrapupCandidateHarvest(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.NotNil(t, contents[0].Transport)
	assert.Len(t, contents[0].Transport.Candidates, 1)
}

func TestFailingHarvesterYieldsNoExtension(t *testing.T) {
	h := &fakeHarvester{name: "broken", err: errors.New("no route")}
	m := NewManager(Options{Harvesters: []Harvester{h}})

	require.NoError(t, m.StartOfferHarvest([]domain.Content{{Name: "audio", Media: domain.MediaAudio}}, nil))
	contents, err := m.WrapupCandidateHarvest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, contents[0].Transport)
}

func TestStaleRemoteCandidatesDiscarded(t *testing.T) {
	m := NewManager(Options{Components: 1})
	require.NoError(t, m.StartOfferHarvest(audioVideo(), nil))
	require.NoError(t, m.StartOfferHarvest(audioVideo(), nil))
	require.Equal(t, 1, m.Generation())

	kept := m.AddRemoteCandidates([]domain.Content{{
		Name: "audio",
		Transport: &domain.Transport{Candidates: []domain.Candidate{
			{ID: "old", Generation: 0},
			{ID: "new", Generation: 1},
		}},
	}})
	assert.Equal(t, 1, kept)
	remote := m.RemoteCandidates("audio")
	require.Len(t, remote, 1)
	assert.Equal(t, "new", remote[0].ID)

	m.RemoveContent("audio")
	assert.Empty(t, m.RemoteCandidates("audio"))
}

func TestClosedManagerRejectsWork(t *testing.T) {
	m := NewManager(Options{})
	m.Close()
	assert.ErrorIs(t, m.StartOfferHarvest(audioVideo(), nil), ErrClosed)
	_, err := m.WrapupCandidateHarvest(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWrapupWithoutStart(t *testing.T) {
	m := NewManager(Options{})
	_, err := m.WrapupCandidateHarvest(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestIDSourceConcurrentUnique(t *testing.T) {
	ids := NewIDSource()
	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := ids.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
	assert.Equal(t, "801", ids.Next())
}
