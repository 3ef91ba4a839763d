package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/bhaijames252-sketch/billbillbill/pkg/api/billing"
	billingclient "github.com/bhaijames252-sketch/billbillbill/pkg/clients/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
)

type apiCall struct {
	method     string
	resourceID string
	payload    interface{}
}

// fakeAPI records calls and returns scripted results per method name
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	results map[string]billingclient.Result
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{results: make(map[string]billingclient.Result)}
}

func (f *fakeAPI) record(method, resourceID string, payload interface{}) billingclient.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{method: method, resourceID: resourceID, payload: payload})
	if res, ok := f.results[method]; ok {
		return res
	}
	return billingclient.Result{Outcome: billingclient.OutcomeSuccess, StatusCode: 200}
}

func (f *fakeAPI) callMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	methods := make([]string, len(f.calls))
	for i, c := range f.calls {
		methods[i] = c.method
	}
	return methods
}

func (f *fakeAPI) CreateCompute(_ context.Context, req *api.ComputeCreateRequest) billingclient.Result {
	return f.record("CreateCompute", req.ResourceID, req)
}
func (f *fakeAPI) UpdateCompute(_ context.Context, id string, req *api.ComputeUpdateRequest) billingclient.Result {
	return f.record("UpdateCompute", id, req)
}
func (f *fakeAPI) DeleteCompute(_ context.Context, id string) billingclient.Result {
	return f.record("DeleteCompute", id, nil)
}
func (f *fakeAPI) CreateDisk(_ context.Context, req *api.DiskCreateRequest) billingclient.Result {
	return f.record("CreateDisk", req.ResourceID, req)
}
func (f *fakeAPI) UpdateDisk(_ context.Context, id string, req *api.DiskUpdateRequest) billingclient.Result {
	return f.record("UpdateDisk", id, req)
}
func (f *fakeAPI) DeleteDisk(_ context.Context, id string) billingclient.Result {
	return f.record("DeleteDisk", id, nil)
}
func (f *fakeAPI) CreateFloatingIP(_ context.Context, req *api.FloatingIPCreateRequest) billingclient.Result {
	return f.record("CreateFloatingIP", req.ResourceID, req)
}
func (f *fakeAPI) ReleaseFloatingIP(_ context.Context, id string) billingclient.Result {
	return f.record("ReleaseFloatingIP", id, nil)
}
func (f *fakeAPI) EnsureWallet(_ context.Context, userID string) billingclient.Result {
	return f.record("EnsureWallet", userID, nil)
}

func rawMessage(t *testing.T, msg map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func TestHandleRawComputeCreate(t *testing.T) {
	f := newFakeAPI()
	h := NewHandler(f, true, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "compute.instance.create.end",
		"payload": map[string]interface{}{
			"instance_id": "vm-1",
			"user_id":     "user-1",
			"flavor":      map[string]interface{}{"name": "medium"},
			"state":       "active",
		},
	})

	disposition := h.HandleRaw(context.Background(), body, "resource.compute.create")
	assert.Equal(t, DispositionAck, disposition)
	require.Len(t, f.calls, 1)
	assert.Equal(t, "CreateCompute", f.calls[0].method)

	req := f.calls[0].payload.(*api.ComputeCreateRequest)
	assert.Equal(t, "vm-1", req.ResourceID)
	assert.Equal(t, "user-1", req.UserID)
	assert.Equal(t, "medium", req.Flavor)
}

func TestHandleRawDuplicateCreateIsAcked(t *testing.T) {
	f := newFakeAPI()
	f.results["CreateCompute"] = billingclient.Result{
		Outcome: billingclient.OutcomeConflict, StatusCode: 409,
	}
	h := NewHandler(f, true, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "compute.instance.create.end",
		"payload": map[string]interface{}{
			"instance_id": "vm-1",
			"user_id":     "user-1",
		},
	})

	// Redelivered create: the resource already exists, so the message is
	// done, not dead-lettered.
	assert.Equal(t, DispositionAck, h.HandleRaw(context.Background(), body, ""))
	assert.Equal(t, DispositionAck, h.HandleRaw(context.Background(), body, ""))
	assert.Len(t, f.calls, 2)
}

func TestHandleRawUndecodableBodyIsRejected(t *testing.T) {
	f := newFakeAPI()
	h := NewHandler(f, true, logging.NewLogger(), nil)

	assert.Equal(t, DispositionReject, h.HandleRaw(context.Background(), []byte("{not json"), ""))
	assert.Empty(t, f.calls)
}

func TestHandleRawMissingUserIDIsRejected(t *testing.T) {
	f := newFakeAPI()
	h := NewHandler(f, true, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "compute.instance.create.end",
		"payload": map[string]interface{}{
			"instance_id": "vm-1",
		},
	})

	assert.Equal(t, DispositionReject, h.HandleRaw(context.Background(), body, ""))
	assert.Empty(t, f.calls)
}

func TestHandleRawTransportErrorIsRequeued(t *testing.T) {
	f := newFakeAPI()
	f.results["DeleteCompute"] = billingclient.Result{
		Outcome: billingclient.OutcomeError,
		Err:     errors.New("connection refused"),
	}
	h := NewHandler(f, true, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "compute.instance.delete.end",
		"payload": map[string]interface{}{
			"instance_id": "vm-1",
			"user_id":     "user-1",
		},
	})

	assert.Equal(t, DispositionRequeue, h.HandleRaw(context.Background(), body, ""))
}

func TestHandleRawNotFoundIsRequeued(t *testing.T) {
	// An update racing ahead of its create gets another chance once the
	// create lands.
	f := newFakeAPI()
	f.results["UpdateCompute"] = billingclient.Result{
		Outcome: billingclient.OutcomeNotFound, StatusCode: 404,
	}
	h := NewHandler(f, true, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "compute.instance.stop.end",
		"payload": map[string]interface{}{
			"instance_id": "vm-1",
			"user_id":     "user-1",
			"state":       "stopped",
		},
	})

	assert.Equal(t, DispositionRequeue, h.HandleRaw(context.Background(), body, ""))
}

func TestHandleDiskAttachIsLocalNoOp(t *testing.T) {
	f := newFakeAPI()
	h := NewHandler(f, true, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "volume.attach.end",
		"payload": map[string]interface{}{
			"volume_id": "vol-1",
			"user_id":   "user-1",
		},
	})

	assert.Equal(t, DispositionAck, h.HandleRaw(context.Background(), body, ""))
	assert.Empty(t, f.calls)
}

func TestHandleFloatingIPRelease(t *testing.T) {
	f := newFakeAPI()
	h := NewHandler(f, true, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "floatingip.delete.end",
		"payload": map[string]interface{}{
			"floatingip_id": "fip-1",
			"tenant_id":     "user-1",
		},
	})

	assert.Equal(t, DispositionAck, h.HandleRaw(context.Background(), body, ""))
	require.Len(t, f.calls, 1)
	assert.Equal(t, "ReleaseFloatingIP", f.calls[0].method)
	assert.Equal(t, "fip-1", f.calls[0].resourceID)
}

func TestHandleEnsuresWalletWhenEnabled(t *testing.T) {
	f := newFakeAPI()
	h := NewHandler(f, false, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "compute.instance.create.end",
		"payload": map[string]interface{}{
			"instance_id": "vm-1",
			"user_id":     "user-1",
		},
	})

	assert.Equal(t, DispositionAck, h.HandleRaw(context.Background(), body, ""))
	assert.Equal(t, []string{"EnsureWallet", "CreateCompute"}, f.callMethods())
}

func TestHandleWalletFailureDoesNotBlockResource(t *testing.T) {
	f := newFakeAPI()
	f.results["EnsureWallet"] = billingclient.Result{
		Outcome: billingclient.OutcomeError,
		Err:     errors.New("wallet service down"),
	}
	h := NewHandler(f, false, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "compute.instance.create.end",
		"payload": map[string]interface{}{
			"instance_id": "vm-1",
			"user_id":     "user-1",
		},
	})

	assert.Equal(t, DispositionAck, h.HandleRaw(context.Background(), body, ""))
	assert.Equal(t, []string{"EnsureWallet", "CreateCompute"}, f.callMethods())
}

func TestHandleComputeResizeSendsFlavorPatch(t *testing.T) {
	f := newFakeAPI()
	h := NewHandler(f, true, logging.NewLogger(), nil)

	body := rawMessage(t, map[string]interface{}{
		"event_type": "compute.instance.resize.confirm.end",
		"payload": map[string]interface{}{
			"instance_id": "vm-1",
			"user_id":     "user-1",
			"flavor":      map[string]interface{}{"name": "large"},
		},
	})

	assert.Equal(t, DispositionAck, h.HandleRaw(context.Background(), body, ""))
	require.Len(t, f.calls, 1)
	patch := f.calls[0].payload.(*api.ComputeUpdateRequest)
	require.NotNil(t, patch.Flavor)
	assert.Equal(t, "large", *patch.Flavor)
	assert.Nil(t, patch.State)
}
