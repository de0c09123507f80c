// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package vpu_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	vpu "github.com/petenewcomb/vpu-go"
	"github.com/stretchr/testify/require"
)

type fakeFuture struct {
	payload []byte
	err     error
	gets    int
}

func (f *fakeFuture) Get(ctx context.Context) ([]byte, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type fakeTransport struct {
	jobPayloads    [][]byte
	updatePayloads [][]byte
	futures        []*fakeFuture
	nextErr        error
	respond        func() []byte
}

func (tr *fakeTransport) next() *fakeFuture {
	payload := []byte(`{"counts":{"00":1},"time_taken":0.001}`)
	if tr.respond != nil {
		payload = tr.respond()
	}
	f := &fakeFuture{payload: payload, err: tr.nextErr}
	tr.futures = append(tr.futures, f)
	return f
}

func (tr *fakeTransport) SendJob(ctx context.Context, payload []byte) (vpu.Future, error) {
	tr.jobPayloads = append(tr.jobPayloads, payload)
	return tr.next(), nil
}

func (tr *fakeTransport) SendUpdate(ctx context.Context, payload []byte) (vpu.Future, error) {
	tr.updatePayloads = append(tr.updatePayloads, payload)
	return tr.next(), nil
}

func fakeWorker(tr *fakeTransport) *vpu.Worker {
	return &vpu.Worker{Device: vpu.Device{Name: "fake-0", Target: "test"}, Transport: tr}
}

func testSpec(t *testing.T, srcs ...string) vpu.JobSpec {
	t.Helper()
	params := make([]*vpu.ParamExpr, len(srcs))
	for i, src := range srcs {
		p, err := vpu.Parse(src)
		require.NoError(t, err)
		params[i] = p
	}
	return vpu.JobSpec{
		ID:                 "job-1",
		ClassicalRegisters: vpu.RegisterLayout{{Name: "c", Bits: []int{0, 1}}},
		NumClbits:          2,
		NumQubits:          2,
		Instructions:       json.RawMessage(`{"ops":["h 0","cx 0 1"]}`),
		Params:             params,
	}
}

func TestJobSubmitSerializesJobMessage(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{}
	job := vpu.NewJob(testSpec(t, "theta", "theta * 2"), fakeWorker(tr), vpu.WithShots(2048))

	chk.NoError(job.Submit(ctx, vpu.Named{"theta": 0.5}))
	chk.Len(tr.jobPayloads, 1)

	var msg struct {
		JobID  string         `json:"job_id"`
		Config map[string]any `json:"config"`
		Instructions struct {
			Ops []string `json:"ops"`
		} `json:"instructions"`
		ClassicalRegisters []struct {
			Name string `json:"name"`
			Bits []int  `json:"bits"`
		} `json:"classical_registers"`
		Params []float64 `json:"params"`
	}
	chk.NoError(json.Unmarshal(tr.jobPayloads[0], &msg))
	chk.Equal("job-1", msg.JobID)
	chk.Equal(float64(2048), msg.Config["shots"])
	chk.Equal("automatic", msg.Config["method"])
	chk.Equal(float64(vpu.DefaultSeed), msg.Config["seed"])
	chk.Equal(false, msg.Config["avoid_parallelization"])
	chk.Equal(float64(2), msg.Config["num_clbits"])
	chk.Equal(float64(2), msg.Config["num_qubits"])
	chk.Equal([]string{"h 0", "cx 0 1"}, msg.Instructions.Ops)
	chk.Len(msg.ClassicalRegisters, 1)
	chk.Equal("c", msg.ClassicalRegisters[0].Name)
	chk.Equal([]int{0, 1}, msg.ClassicalRegisters[0].Bits)
	chk.Equal([]float64{0.5, 1.0}, msg.Params)
}

func TestJobBlankIDGetsGenerated(t *testing.T) {
	chk := require.New(t)
	spec := testSpec(t)
	spec.ID = ""
	job := vpu.NewJob(spec, fakeWorker(&fakeTransport{}))
	chk.NotEmpty(job.ID())
}

func TestJobSubmitUnboundParameterFails(t *testing.T) {
	chk := require.New(t)
	tr := &fakeTransport{}
	job := vpu.NewJob(testSpec(t, "theta"), fakeWorker(tr))
	err := job.Submit(context.Background(), nil)
	chk.ErrorIs(err, vpu.ErrUnboundParameter)
	chk.Empty(tr.jobPayloads)
}

func TestJobDoubleSubmitIsNoOp(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{}
	job := vpu.NewJob(testSpec(t), fakeWorker(tr))

	chk.NoError(job.Submit(ctx, nil))
	chk.NoError(job.Submit(ctx, nil)) // ignored, not an error
	chk.Len(tr.jobPayloads, 1)
	chk.Equal(vpu.StateSubmitted, job.State())
}

func TestJobResultBeforeSubmit(t *testing.T) {
	chk := require.New(t)
	job := vpu.NewJob(testSpec(t), fakeWorker(&fakeTransport{}))
	_, err := job.Result(context.Background())
	chk.ErrorIs(err, vpu.ErrNoSubmission)
}

func TestJobResultIsMemoized(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{}
	job := vpu.NewJob(testSpec(t), fakeWorker(tr))
	chk.NoError(job.Submit(ctx, nil))

	first, err := job.Result(ctx)
	chk.NoError(err)
	second, err := job.Result(ctx)
	chk.NoError(err)
	chk.Same(first, second)
	chk.Equal(1, tr.futures[0].gets)
}

func TestJobUpgradeDrainsUnreadFuture(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{}
	job := vpu.NewJob(testSpec(t, "theta"), fakeWorker(tr))
	chk.NoError(job.Submit(ctx, vpu.Positional{0.1}))

	// The submission result is still unread, so the update must drain it
	// with exactly one blocking read before sending.
	chk.NoError(job.UpgradeParameters(ctx, vpu.Positional{0.2}))
	chk.Equal(1, tr.futures[0].gets)
	chk.Len(tr.updatePayloads, 1)

	var msg struct {
		Params []float64 `json:"params"`
	}
	chk.NoError(json.Unmarshal(tr.updatePayloads[0], &msg))
	chk.Equal([]float64{0.2}, msg.Params)
}

func TestJobUpgradeAfterResultDoesNotDrain(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{}
	job := vpu.NewJob(testSpec(t, "theta"), fakeWorker(tr))
	chk.NoError(job.Submit(ctx, vpu.Positional{0.1}))
	_, err := job.Result(ctx)
	chk.NoError(err)

	chk.NoError(job.UpgradeParameters(ctx, vpu.Positional{0.2}))
	chk.Equal(1, tr.futures[0].gets)
}

func TestJobUpgradeNamedUpdateMessage(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{}
	job := vpu.NewJob(testSpec(t, "theta"), fakeWorker(tr))
	chk.NoError(job.Submit(ctx, vpu.Named{"theta": 0.1}))

	chk.NoError(job.UpgradeParameters(ctx, vpu.Named{"theta": 0.3}))
	var msg struct {
		Params map[string]float64 `json:"params"`
	}
	chk.NoError(json.Unmarshal(tr.updatePayloads[0], &msg))
	chk.Equal(map[string]float64{"theta": 0.3}, msg.Params)
}

func TestJobUpgradeForcesRefetch(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{}
	job := vpu.NewJob(testSpec(t, "theta"), fakeWorker(tr))
	chk.NoError(job.Submit(ctx, vpu.Positional{0.1}))

	first, err := job.Result(ctx)
	chk.NoError(err)
	chk.NoError(job.UpgradeParameters(ctx, vpu.Positional{0.2}))
	chk.Equal(vpu.StateStaleAfterUpdate, job.State())

	second, err := job.Result(ctx)
	chk.NoError(err)
	chk.NotSame(first, second)
	chk.Equal(1, tr.futures[1].gets)
}

func TestJobStateCycle(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{}
	job := vpu.NewJob(testSpec(t, "theta"), fakeWorker(tr))

	chk.Equal(vpu.StateCreated, job.State())
	chk.NoError(job.Submit(ctx, vpu.Positional{0.1}))
	chk.Equal(vpu.StateSubmitted, job.State())
	_, err := job.Result(ctx)
	chk.NoError(err)
	chk.Equal(vpu.StateResultCached, job.State())
	chk.NoError(job.UpgradeParameters(ctx, vpu.Positional{0.2}))
	chk.Equal(vpu.StateStaleAfterUpdate, job.State())
	_, err = job.Result(ctx)
	chk.NoError(err)
	chk.Equal(vpu.StateResultCached, job.State())
}

func TestJobTransportErrorPropagatesUnchanged(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	transportErr := errors.New("connection reset")
	tr := &fakeTransport{nextErr: transportErr}
	job := vpu.NewJob(testSpec(t), fakeWorker(tr))
	chk.NoError(job.Submit(ctx, nil))

	_, err := job.Result(ctx)
	chk.ErrorIs(err, transportErr)
}

func TestJobEmptyResultPayload(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{respond: func() []byte { return nil }}
	job := vpu.NewJob(testSpec(t), fakeWorker(tr))
	chk.NoError(job.Submit(ctx, nil))

	_, err := job.Result(ctx)
	chk.ErrorIs(err, vpu.ErrEmptyResult)
}

func TestJobSimulationErrorPayload(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	tr := &fakeTransport{respond: func() []byte { return []byte(`{"ERROR":"no backend"}`) }}
	job := vpu.NewJob(testSpec(t), fakeWorker(tr))
	chk.NoError(job.Submit(ctx, nil))

	_, err := job.Result(ctx)
	chk.ErrorIs(err, vpu.ErrSimulationFailed)
}
