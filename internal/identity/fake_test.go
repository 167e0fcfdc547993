package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// fakeDirectory answers per login name with a scripted delay and error.
type fakeDirectory struct {
	mu      sync.Mutex
	calls   []string
	replies map[string]fakeReply
	block   chan struct{} // names with hang set wait on this and ignore ctx
}

type fakeReply struct {
	delay time.Duration
	err   error
	hang  bool
}

var errRejected = errors.New("LDAP Result Code 49 \"Invalid Credentials\": 80090308: LdapErr: DSID-0C09044E, comment: AcceptSecurityContext error, data 52e, v4563")

func newFakeDirectory(replies map[string]fakeReply) *fakeDirectory {
	return &fakeDirectory{
		replies: replies,
		block:   make(chan struct{}),
	}
}

func (f *fakeDirectory) Authenticate(_ context.Context, loginName, _ string) (*Principal, error) {
	f.mu.Lock()
	f.calls = append(f.calls, loginName)
	f.mu.Unlock()

	rep, ok := f.lookup(loginName)
	if !ok {
		return nil, errRejected
	}
	if rep.hang {
		<-f.block
		return nil, errors.New("released")
	}
	if rep.delay > 0 {
		time.Sleep(rep.delay)
	}
	if rep.err != nil {
		return nil, rep.err
	}
	return &Principal{LoginName: loginName}, nil
}

// lookup matches login names case-insensitively, as Active Directory does.
func (f *fakeDirectory) lookup(loginName string) (fakeReply, bool) {
	for name, rep := range f.replies {
		if strings.EqualFold(name, loginName) {
			return rep, true
		}
	}
	return fakeReply{}, false
}

func (f *fakeDirectory) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDirectory) release() {
	close(f.block)
}

type fakeMetrics struct {
	mu          sync.Mutex
	attempts    int
	timeouts    int
	resolutions map[string]int
	hits        int
	misses      int
	evictions   int
	size        int
}

func (m *fakeMetrics) ObserveAttempt(_ Format, _, timedOut bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if timedOut {
		m.timeouts++
	}
}

func (m *fakeMetrics) ObserveResolution(path string, _ bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolutions == nil {
		m.resolutions = make(map[string]int)
	}
	m.resolutions[path]++
}

func (m *fakeMetrics) ObserveCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *fakeMetrics) ObserveCacheEviction() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions++
}

func (m *fakeMetrics) SetCacheSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size = n
}
