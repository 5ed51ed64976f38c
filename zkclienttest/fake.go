// Package zkclienttest provides an in-memory fake of zkclient.Client for
// deterministic unit tests of lock and election, the way the teacher's
// own tests reach for table-driven fakes rather than a live ensemble.
package zkclienttest

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mlindqvist/zkdistributed/zkclient"
	"github.com/mlindqvist/zkdistributed/zkerrors"
)

type fakeNode struct {
	data      []byte
	ephemeral bool
	ctime     int64
}

// Fake is a single-session, in-memory coordination service. It is safe
// for concurrent use by multiple goroutines, the way a real Client is.
type Fake struct {
	mu       sync.Mutex
	nodes    map[string]*fakeNode
	seq      map[string]int64 // next sequence number to assign, by parent path
	watchers map[string][]chan zkclient.Event

	connected bool
	expired   chan struct{}
}

// New returns a connected Fake with an empty tree.
func New() *Fake {
	return &Fake{
		nodes:     map[string]*fakeNode{"/": {}},
		seq:       map[string]int64{},
		watchers:  map[string][]chan zkclient.Event{},
		connected: true,
		expired:   make(chan struct{}),
	}
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) SessionExpired() <-chan struct{} { return f.expired }

// Expire simulates session loss: every ephemeral node is removed (firing
// deletion watches) and SessionExpired's channel is closed.
func (f *Fake) Expire() {
	f.mu.Lock()
	f.connected = false
	var toDelete []string
	for path, n := range f.nodes {
		if n.ephemeral {
			toDelete = append(toDelete, path)
		}
	}
	for _, path := range toDelete {
		delete(f.nodes, path)
	}
	pending := f.watchers
	f.watchers = map[string][]chan zkclient.Event{}
	f.mu.Unlock()

	for _, chans := range pending {
		for _, ch := range chans {
			select {
			case ch <- zkclient.Event{Kind: zkclient.EventNodeDeleted}:
			default:
			}
		}
	}
	close(f.expired)
}

func (f *Fake) Create(path string, data []byte, mode zkclient.Mode) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	finalPath := path
	if mode == zkclient.ModePersistentSequential || mode == zkclient.ModeEphemeralSequential {
		parent := parentOf(path)
		n := f.seq[parent]
		f.seq[parent] = n + 1
		finalPath = path + zeroPad(n)
	}

	if _, exists := f.nodes[finalPath]; exists {
		return "", zkerrors.ErrNodeExists
	}

	f.nodes[finalPath] = &fakeNode{
		data:      append([]byte(nil), data...),
		ephemeral: mode == zkclient.ModeEphemeral || mode == zkclient.ModeEphemeralSequential,
		ctime:     time.Now().UnixNano(),
	}

	f.fireLocked(finalPath, zkclient.EventNodeCreated)
	f.fireLocked(parentOf(finalPath), zkclient.EventNodeChildrenChanged)
	return finalPath, nil
}

func (f *Fake) Delete(path string, ignoreNoNode, ignoreNotEmpty bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.nodes[path]; !exists {
		if ignoreNoNode {
			return nil
		}
		return zkerrors.ErrNoNode
	}

	for candidate := range f.nodes {
		if candidate != path && parentOf(candidate) == path {
			if ignoreNotEmpty {
				return nil
			}
			return zkerrors.ErrNotEmpty
		}
	}

	delete(f.nodes, path)
	f.fireLocked(path, zkclient.EventNodeDeleted)
	f.fireLocked(parentOf(path), zkclient.EventNodeChildrenChanged)
	return nil
}

func (f *Fake) Exists(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.nodes[path]
	return exists, nil
}

func (f *Fake) StatOf(path string) (zkclient.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, exists := f.nodes[path]
	if !exists {
		return zkclient.Stat{}, nil
	}
	return zkclient.Stat{Exists: true, Ctime: n.ctime}, nil
}

func (f *Fake) Get(path string) ([]byte, zkclient.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, exists := f.nodes[path]
	if !exists {
		return nil, zkclient.Stat{}, zkerrors.ErrNoNode
	}
	return append([]byte(nil), n.data...), zkclient.Stat{Exists: true, Ctime: n.ctime}, nil
}

func (f *Fake) Children(path string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.nodes[path]; !exists {
		return nil, zkerrors.ErrNoNode
	}

	var out []string
	for candidate := range f.nodes {
		if candidate != path && parentOf(candidate) == path {
			out = append(out, basename(candidate))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) MkdirP(path string) error {
	if path == "" || path == "/" {
		return nil
	}
	var current strings.Builder
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		current.WriteByte('/')
		current.WriteString(part)
		if _, err := f.Create(current.String(), nil, zkclient.ModePersistent); err != nil && err != zkerrors.ErrNodeExists {
			return err
		}
	}
	return nil
}

func (f *Fake) Watch(path string) (<-chan zkclient.Event, func(), error) {
	f.mu.Lock()
	ch := make(chan zkclient.Event, 1)
	f.watchers[path] = append(f.watchers[path], ch)
	f.mu.Unlock()

	unsubscribe := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		chans := f.watchers[path]
		for i, c := range chans {
			if c == ch {
				f.watchers[path] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
	}
	return ch, unsubscribe, nil
}

func (f *Fake) fireLocked(path string, kind zkclient.EventKind) {
	for _, ch := range f.watchers[path] {
		select {
		case ch <- zkclient.Event{Kind: kind, Path: path}:
		default:
		}
	}
	delete(f.watchers, path)
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

func basename(path string) string {
	idx := strings.LastIndex(path, "/")
	return path[idx+1:]
}

func zeroPad(n int64) string {
	const width = 10
	s := strconv.FormatInt(n, 10)
	for len(s) < width {
		s = "0" + s
	}
	return s
}
