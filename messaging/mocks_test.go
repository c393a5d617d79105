package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
)

type ackCall struct {
	MessageID  string
	ReceiverID string
}

// mockServer is a relay stub for the delivery calls. Unimplemented methods
// panic through the nil embedded interface.
type mockServer struct {
	rpc.Server

	mu         sync.Mutex
	requests   []*model.Message
	deliveries []*model.Delivery
	acks       []ackCall
	confirms   []string
	files      int
	failFor    map[string]error
	nextID     int
}

func newMockServer() *mockServer {
	return &mockServer{failFor: make(map[string]error)}
}

func (m *mockServer) DeliveryRequest(ctx context.Context, message *model.Message, deliveries []*model.Delivery) ([]*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range deliveries {
		if err := m.failFor[d.ReceiverID+d.GroupID]; err != nil {
			return nil, err
		}
	}
	m.nextID++
	id := fmt.Sprintf("m%d", m.nextID)
	cp := *message
	m.requests = append(m.requests, &cp)
	out := make([]*model.Delivery, 0, len(deliveries))
	for _, d := range deliveries {
		dc := *d
		m.deliveries = append(m.deliveries, &dc)
		accepted := *d
		accepted.MessageID = id
		accepted.State = model.DeliveryDelivering
		out = append(out, &accepted)
	}
	return out, nil
}

func (m *mockServer) DeliveryAcknowledge(ctx context.Context, messageID, receiverID string) (*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks = append(m.acks, ackCall{messageID, receiverID})
	return &model.Delivery{MessageID: messageID, ReceiverID: receiverID, State: model.DeliveryConfirmed}, nil
}

func (m *mockServer) DeliveryConfirm(ctx context.Context, messageID string) (*model.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms = append(m.confirms, messageID)
	return &model.Delivery{MessageID: messageID, State: model.DeliveryDelivered}, nil
}

func (m *mockServer) CreateFileForStorage(ctx context.Context, contentSize int64) (*model.FileHandles, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files++
	id := fmt.Sprintf("f%d", m.files)
	return &model.FileHandles{
		FileID:      id,
		UploadURL:   "https://files.example/upload/" + id,
		DownloadURL: "https://files.example/download/" + id,
	}, nil
}

// mockTransfers records transfer registrations.
type mockTransfers struct {
	mu        sync.Mutex
	uploads   []*model.Upload
	downloads []*model.Download
}

func (m *mockTransfers) RequestUpload(upload *model.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, upload)
	return nil
}

func (m *mockTransfers) RegisterDownload(download *model.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads = append(m.downloads, download)
	return nil
}
