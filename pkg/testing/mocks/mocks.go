package mocks

import (
	"context"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/fitglue/heatmap/pkg/types"
)

// --- Mock Database ---
type MockDatabase struct {
	GetHeatmapStateFunc     func(ctx context.Context, model string) (*types.HeatmapState, error)
	SetHeatmapStateFunc     func(ctx context.Context, model string, state *types.HeatmapState) error
	GetActivityIndexFunc    func(ctx context.Context, model string) (*types.ActivityDateIndex, error)
	AddActivityDateFunc     func(ctx context.Context, model string, date string) error
	GetManifestFunc         func(ctx context.Context) (types.ProcessedManifest, error)
	MarkProcessedFunc       func(ctx context.Context, path string, at time.Time) error
	GetStravaSwitchFunc     func(ctx context.Context) (string, error)
	CheckAndMarkMessageFunc func(ctx context.Context, collection, key string, ttl time.Duration) (bool, error)
	UpdateMessageFunc       func(ctx context.Context, collection, key string, data map[string]interface{}) error
	CreateDownloadLinkFunc  func(ctx context.Context, link *types.DownloadLink) error
}

func (m *MockDatabase) GetHeatmapState(ctx context.Context, model string) (*types.HeatmapState, error) {
	if m.GetHeatmapStateFunc != nil {
		return m.GetHeatmapStateFunc(ctx, model)
	}
	return nil, nil
}
func (m *MockDatabase) SetHeatmapState(ctx context.Context, model string, state *types.HeatmapState) error {
	if m.SetHeatmapStateFunc != nil {
		return m.SetHeatmapStateFunc(ctx, model, state)
	}
	return nil
}
func (m *MockDatabase) GetActivityIndex(ctx context.Context, model string) (*types.ActivityDateIndex, error) {
	if m.GetActivityIndexFunc != nil {
		return m.GetActivityIndexFunc(ctx, model)
	}
	return nil, nil
}
func (m *MockDatabase) AddActivityDate(ctx context.Context, model string, date string) error {
	if m.AddActivityDateFunc != nil {
		return m.AddActivityDateFunc(ctx, model, date)
	}
	return nil
}
func (m *MockDatabase) GetManifest(ctx context.Context) (types.ProcessedManifest, error) {
	if m.GetManifestFunc != nil {
		return m.GetManifestFunc(ctx)
	}
	return types.ProcessedManifest{}, nil
}
func (m *MockDatabase) MarkProcessed(ctx context.Context, path string, at time.Time) error {
	if m.MarkProcessedFunc != nil {
		return m.MarkProcessedFunc(ctx, path, at)
	}
	return nil
}
func (m *MockDatabase) GetStravaSwitch(ctx context.Context) (string, error) {
	if m.GetStravaSwitchFunc != nil {
		return m.GetStravaSwitchFunc(ctx)
	}
	return "testing", nil
}
func (m *MockDatabase) CheckAndMarkMessage(ctx context.Context, collection, key string, ttl time.Duration) (bool, error) {
	if m.CheckAndMarkMessageFunc != nil {
		return m.CheckAndMarkMessageFunc(ctx, collection, key, ttl)
	}
	return true, nil
}
func (m *MockDatabase) UpdateMessage(ctx context.Context, collection, key string, data map[string]interface{}) error {
	if m.UpdateMessageFunc != nil {
		return m.UpdateMessageFunc(ctx, collection, key, data)
	}
	return nil
}
func (m *MockDatabase) CreateDownloadLink(ctx context.Context, link *types.DownloadLink) error {
	if m.CreateDownloadLinkFunc != nil {
		return m.CreateDownloadLinkFunc(ctx, link)
	}
	return nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	return "msg-id", nil
}

// --- Mock Storage ---
type MockBlobStore struct {
	ExistsFunc   func(ctx context.Context, bucket, object string) (bool, error)
	ReadFunc     func(ctx context.Context, bucket, object string) ([]byte, error)
	WriteFunc    func(ctx context.Context, bucket, object string, data []byte) error
	DownloadFunc func(ctx context.Context, bucket, object, localPath string) error
	UploadFunc   func(ctx context.Context, bucket, object, localPath string) error
	ComposeFunc  func(ctx context.Context, bucket, dst string, srcs ...string) error
	DeleteFunc   func(ctx context.Context, bucket, object string) error
	ListFunc     func(ctx context.Context, bucket, prefix string) ([]string, error)
}

func (m *MockBlobStore) Exists(ctx context.Context, bucket, object string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, bucket, object)
	}
	return true, nil
}
func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	return []byte("mock-data"), nil
}
func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	return nil
}
func (m *MockBlobStore) Download(ctx context.Context, bucket, object, localPath string) error {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, bucket, object, localPath)
	}
	return nil
}
func (m *MockBlobStore) Upload(ctx context.Context, bucket, object, localPath string) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, bucket, object, localPath)
	}
	return nil
}
func (m *MockBlobStore) Compose(ctx context.Context, bucket, dst string, srcs ...string) error {
	if m.ComposeFunc != nil {
		return m.ComposeFunc(ctx, bucket, dst, srcs...)
	}
	return nil
}
func (m *MockBlobStore) Delete(ctx context.Context, bucket, object string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, bucket, object)
	}
	return nil
}
func (m *MockBlobStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, bucket, prefix)
	}
	return nil, nil
}
