package filter

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/clock"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/packettest"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

type mockMatcher struct {
	mock.Mock
}

func (m *mockMatcher) Decide(name string) domain.BlockDecision {
	args := m.Called(name)
	return args.Get(0).(domain.BlockDecision)
}

type verdictRecord struct {
	v       domain.Verdict
	r       domain.Reason
	elapsed time.Duration
}

type fakeRecorder struct {
	mu       sync.Mutex
	verdicts []verdictRecord
	decode   []string
}

func (f *fakeRecorder) ObserveVerdict(v domain.Verdict, r domain.Reason, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts = append(f.verdicts, verdictRecord{v, r, elapsed})
}

func (f *fakeRecorder) DecodeError(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decode = append(f.decode, kind)
}

func (f *fakeRecorder) VerdictError() {}
func (f *fakeRecorder) Panic()        {}
func (f *fakeRecorder) InFlight(int)  {}

type captureLogger struct {
	mu    sync.Mutex
	infos []map[string]any
}

func (l *captureLogger) Info(fields map[string]any, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fields)
}
func (l *captureLogger) Error(map[string]any, string) {}
func (l *captureLogger) Debug(map[string]any, string) {}
func (l *captureLogger) Warn(map[string]any, string)  {}
func (l *captureLogger) Panic(map[string]any, string) {}
func (l *captureLogger) Fatal(map[string]any, string) {}

func newInspector(t *testing.T, m Matcher, skip float64, src RandomSource) (*Inspector, *fakeRecorder, *captureLogger) {
	t.Helper()
	s, err := NewSampler(skip, src)
	require.NoError(t, err)
	clk := clock.NewMockClock(time.Unix(1700000000, 0))
	clk.SetStep(3 * time.Microsecond)
	rec := &fakeRecorder{}
	lg := &captureLogger{}
	in, err := NewInspector(Options{
		Matcher:  m,
		Sampler:  s,
		Recorder: rec,
		Clock:    clk,
		Logger:   lg,
	})
	require.NoError(t, err)
	return in, rec, lg
}

func TestNewInspector_RequiresCollaborators(t *testing.T) {
	s, err := NewSampler(0, nil)
	require.NoError(t, err)

	_, err = NewInspector(Options{Sampler: s})
	assert.Error(t, err)
	_, err = NewInspector(Options{Matcher: &mockMatcher{}})
	assert.Error(t, err)

	in, err := NewInspector(Options{Matcher: &mockMatcher{}, Sampler: s})
	require.NoError(t, err)
	assert.NotNil(t, in.recorder)
	assert.NotNil(t, in.logger)
	assert.NotNil(t, in.clock)
}

func TestInspector_BlockedQueryDrops(t *testing.T) {
	m := &mockMatcher{}
	m.On("Decide", "ads.example.com").Return(domain.BlockDecision{Blocked: true, MatchedRule: "example.com", Source: "config"}).Once()
	in, rec, lg := newInspector(t, m, 0, nil)

	v := in.Process(domain.RawPacket{ID: 7, Data: packettest.DNSQuery(t, "ads.example.com")})

	assert.Equal(t, domain.VerdictDrop, v)
	m.AssertExpectations(t)
	require.Len(t, rec.verdicts, 1)
	assert.Equal(t, domain.ReasonBlocked, rec.verdicts[0].r)
	assert.Equal(t, 3*time.Microsecond, rec.verdicts[0].elapsed)
	require.Len(t, lg.infos, 1)
	assert.Equal(t, "example.com", lg.infos[0]["apex"])
	assert.Equal(t, "example.com", lg.infos[0]["rule"])
	assert.Equal(t, uint32(7), lg.infos[0]["id"])
}

func TestInspector_AllowedQueryAccepts(t *testing.T) {
	m := &mockMatcher{}
	m.On("Decide", "www.example.org").Return(domain.BlockDecision{}).Once()
	in, rec, lg := newInspector(t, m, 0, nil)

	v := in.Process(domain.RawPacket{ID: 1, Data: packettest.DNSQuery(t, "www.example.org")})

	assert.Equal(t, domain.VerdictAccept, v)
	m.AssertExpectations(t)
	assert.Equal(t, domain.ReasonAllowed, rec.verdicts[0].r)
	assert.Empty(t, lg.infos)
}

func TestInspector_NamePassedVerbatim(t *testing.T) {
	m := &mockMatcher{}
	m.On("Decide", "WWW.Example.COM").Return(domain.BlockDecision{}).Once()
	in, _, _ := newInspector(t, m, 0, nil)

	in.Process(domain.RawPacket{Data: packettest.DNSQuery(t, "WWW.Example.COM")})
	m.AssertExpectations(t)
}

func TestInspector_MatcherNotConsulted(t *testing.T) {
	tests := []struct {
		name   string
		data   func(t *testing.T) []byte
		skip   float64
		reason domain.Reason
	}{
		{"garbage", func(*testing.T) []byte { return []byte{0x00, 0x01} }, 0, domain.ReasonNotIPv4},
		{"empty", func(*testing.T) []byte { return nil }, 0, domain.ReasonNotIPv4},
		{"ipv6", func(t *testing.T) []byte { return packettest.IPv6UDP(t, 53, packettest.Query(t, "a.example")) }, 0, domain.ReasonNotIPv4},
		{"tcp 53", func(t *testing.T) []byte { return packettest.TCP(t, 53) }, 0, domain.ReasonNotUDP},
		{"fragment", func(t *testing.T) []byte { return packettest.Fragment(t, packettest.Query(t, "a.example")) }, 0, domain.ReasonNotUDP},
		{"udp 5353", func(t *testing.T) []byte { return packettest.UDP(t, 40000, 5353, packettest.Query(t, "a.example")) }, 0, domain.ReasonNotDNS},
		{"response from 53", func(t *testing.T) []byte { return packettest.UDP(t, 53, 40000, packettest.Query(t, "a.example")) }, 0, domain.ReasonNotDNS},
		{"sampled out", func(t *testing.T) []byte { return packettest.DNSQuery(t, "a.example") }, 1, domain.ReasonSampledOut},
		{"truncated name", func(t *testing.T) []byte {
			return packettest.UDP(t, 40000, 53, packettest.RawQuestion(5, 'a', 'b'))
		}, 0, domain.ReasonDecodeError},
		{"compression pointer", func(t *testing.T) []byte {
			return packettest.UDP(t, 40000, 53, packettest.RawQuestion(0xC0, 0x0C))
		}, 0, domain.ReasonDecodeError},
		{"short payload", func(t *testing.T) []byte { return packettest.UDP(t, 40000, 53, []byte{1, 2, 3}) }, 0, domain.ReasonDecodeError},
		{"control bytes", func(t *testing.T) []byte {
			return packettest.UDP(t, 40000, 53, packettest.RawQuestion(packettest.Labels("a\x01b", "com")...))
		}, 0, domain.ReasonDecodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockMatcher{}
			in, rec, _ := newInspector(t, m, tt.skip, nil)

			v := in.Process(domain.RawPacket{ID: 9, Data: tt.data(t)})

			assert.Equal(t, domain.VerdictAccept, v)
			m.AssertNotCalled(t, "Decide", mock.Anything)
			require.Len(t, rec.verdicts, 1)
			assert.Equal(t, tt.reason, rec.verdicts[0].r)
			if tt.reason == domain.ReasonDecodeError {
				assert.Len(t, rec.decode, 1)
			} else {
				assert.Empty(t, rec.decode)
			}
		})
	}
}

func TestInspector_NameTooLongForBuffer(t *testing.T) {
	m := &mockMatcher{}
	s, err := NewSampler(0, nil)
	require.NoError(t, err)
	rec := &fakeRecorder{}
	in, err := NewInspector(Options{Matcher: m, Sampler: s, Recorder: rec, NameBuffer: 8})
	require.NoError(t, err)

	v := in.Process(domain.RawPacket{Data: packettest.DNSQuery(t, "longer-than-eight.example")})
	assert.Equal(t, domain.VerdictAccept, v)
	m.AssertNotCalled(t, "Decide", mock.Anything)
	assert.Equal(t, []string{"buffer_overflow"}, rec.decode)
}

func TestInspector_PartialSampling(t *testing.T) {
	m := &mockMatcher{}
	m.On("Decide", "ads.example.com").Return(domain.BlockDecision{Blocked: true, MatchedRule: "ads.example.com", Source: "config"})
	src := &seqSource{vals: []float64{0.1, 0.9}}
	in, rec, _ := newInspector(t, m, 0.5, src)

	pkt := domain.RawPacket{Data: packettest.DNSQuery(t, "ads.example.com")}
	assert.Equal(t, domain.VerdictAccept, in.Process(pkt))
	assert.Equal(t, domain.VerdictDrop, in.Process(pkt))
	m.AssertNumberOfCalls(t, "Decide", 1)
	assert.Equal(t, domain.ReasonSampledOut, rec.verdicts[0].r)
	assert.Equal(t, domain.ReasonBlocked, rec.verdicts[1].r)
}

func TestInspector_ConcurrentProcess(t *testing.T) {
	m := &mockMatcher{}
	m.On("Decide", mock.MatchedBy(func(n string) bool { return strings.HasSuffix(n, ".blocked.test") })).
		Return(domain.BlockDecision{Blocked: true, MatchedRule: "blocked.test", Source: "config"})
	m.On("Decide", mock.Anything).Return(domain.BlockDecision{})
	in, _, _ := newInspector(t, m, 0, nil)

	blocked := packettest.DNSQuery(t, "x.blocked.test")
	allowed := packettest.DNSQuery(t, "x.allowed.test")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if in.Process(domain.RawPacket{Data: blocked}) != domain.VerdictDrop {
					t.Error("blocked name accepted")
					return
				}
				if in.Process(domain.RawPacket{Data: allowed}) != domain.VerdictAccept {
					t.Error("allowed name dropped")
					return
				}
			}
		}()
	}
	wg.Wait()
}
