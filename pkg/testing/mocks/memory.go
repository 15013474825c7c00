package mocks

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fitglue/heatmap/pkg/types"
)

// MemoryBlobStore keeps objects in memory and records every mutating call in Ops,
// e.g. "compose heatmap/mtb_v00.gpx <- heatmap/mtb_v00.gpx,heatmap/fragments/a.gpx".
type MemoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	Ops     []string
	// FailOn makes the named operation ("write", "upload", "compose", ...) fail.
	FailOn map[string]error
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: map[string][]byte{}, FailOn: map[string]error{}}
}

func key(bucket, object string) string { return bucket + "/" + object }

// Put stores an object directly, without recording an op.
func (m *MemoryBlobStore) Put(bucket, object string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key(bucket, object)] = slices.Clone(data)
}

// Get returns an object's content.
func (m *MemoryBlobStore) Get(bucket, object string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key(bucket, object)]
	return data, ok
}

// Objects lists object names in bucket, sorted.
func (m *MemoryBlobStore) Objects(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for k := range m.objects {
		if name, ok := strings.CutPrefix(k, bucket+"/"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *MemoryBlobStore) record(op, detail string) error {
	m.Ops = append(m.Ops, op+" "+detail)
	if err, ok := m.FailOn[op]; ok {
		return err
	}
	return nil
}

func notExist(bucket, object string) error {
	return fmt.Errorf("object %s/%s: %w", bucket, object, fs.ErrNotExist)
}

func (m *MemoryBlobStore) Exists(ctx context.Context, bucket, object string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailOn["exists"]; ok {
		return false, err
	}
	_, ok := m.objects[key(bucket, object)]
	return ok, nil
}

func (m *MemoryBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key(bucket, object)]
	if !ok {
		return nil, notExist(bucket, object)
	}
	return slices.Clone(data), nil
}

func (m *MemoryBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("write", object); err != nil {
		return err
	}
	m.objects[key(bucket, object)] = slices.Clone(data)
	return nil
}

func (m *MemoryBlobStore) Download(ctx context.Context, bucket, object, localPath string) error {
	m.mu.Lock()
	data, ok := m.objects[key(bucket, object)]
	err := m.record("download", object)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return notExist(bucket, object)
	}
	return os.WriteFile(localPath, data, 0o600)
}

func (m *MemoryBlobStore) Upload(ctx context.Context, bucket, object, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("upload", object); err != nil {
		return err
	}
	m.objects[key(bucket, object)] = data
	return nil
}

func (m *MemoryBlobStore) Compose(ctx context.Context, bucket, dst string, srcs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("compose", dst+" <- "+strings.Join(srcs, ",")); err != nil {
		return err
	}
	var out []byte
	for _, src := range srcs {
		data, ok := m.objects[key(bucket, src)]
		if !ok {
			return notExist(bucket, src)
		}
		out = append(out, data...)
	}
	m.objects[key(bucket, dst)] = out
	return nil
}

func (m *MemoryBlobStore) Delete(ctx context.Context, bucket, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete", object); err != nil {
		return err
	}
	if _, ok := m.objects[key(bucket, object)]; !ok {
		return notExist(bucket, object)
	}
	delete(m.objects, key(bucket, object))
	return nil
}

func (m *MemoryBlobStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var out []string
	for _, name := range m.Objects(bucket) {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out, nil
}

// MemoryDatabase is an in-memory Database.
type MemoryDatabase struct {
	mu       sync.Mutex
	States   map[string]types.HeatmapState
	Indexes  map[string][]string
	Manifest types.ProcessedManifest
	Switch   string
	Messages map[string]map[string]interface{}
	Links    []types.DownloadLink
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		States:   map[string]types.HeatmapState{},
		Indexes:  map[string][]string{},
		Manifest: types.ProcessedManifest{},
		Messages: map[string]map[string]interface{}{},
	}
}

func (m *MemoryDatabase) GetHeatmapState(ctx context.Context, model string) (*types.HeatmapState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.States[model]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryDatabase) SetHeatmapState(ctx context.Context, model string, state *types.HeatmapState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.States[model] = *state
	return nil
}

func (m *MemoryDatabase) GetActivityIndex(ctx context.Context, model string) (*types.ActivityDateIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dates, ok := m.Indexes[model]
	if !ok {
		return nil, nil
	}
	return &types.ActivityDateIndex{Dates: slices.Clone(dates)}, nil
}

func (m *MemoryDatabase) AddActivityDate(ctx context.Context, model string, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.Indexes[model], date) {
		m.Indexes[model] = append(m.Indexes[model], date)
	}
	return nil
}

func (m *MemoryDatabase) GetManifest(ctx context.Context) (types.ProcessedManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(types.ProcessedManifest, len(m.Manifest))
	for k, v := range m.Manifest {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryDatabase) MarkProcessed(ctx context.Context, path string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Manifest[path] = at.UTC().Format(time.RFC3339)
	return nil
}

func (m *MemoryDatabase) GetStravaSwitch(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Switch, nil
}

func (m *MemoryDatabase) CheckAndMarkMessage(ctx context.Context, collection, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := collection + "/" + key
	if _, ok := m.Messages[id]; ok {
		return false, nil
	}
	m.Messages[id] = map[string]interface{}{"status": types.MessageStatusProcessing}
	return true, nil
}

func (m *MemoryDatabase) UpdateMessage(ctx context.Context, collection, key string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := collection + "/" + key
	doc, ok := m.Messages[id]
	if !ok {
		doc = map[string]interface{}{}
		m.Messages[id] = doc
	}
	for k, v := range data {
		doc[k] = v
	}
	return nil
}

func (m *MemoryDatabase) CreateDownloadLink(ctx context.Context, link *types.DownloadLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Links = append(m.Links, *link)
	return nil
}
