package airdrop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.dogecoin.org/airdrop/internal/connector"
	"code.dogecoin.org/airdrop/internal/funder"
	"code.dogecoin.org/airdrop/internal/lntest"
	"code.dogecoin.org/airdrop/internal/spec"
	"code.dogecoin.org/airdrop/internal/store"
	"code.dogecoin.org/governor"
)

func addr(host string) spec.NetworkAddress {
	return spec.NetworkAddress{Kind: spec.KindIPv4, Host: host, Port: 9735}
}

func active(a, b string) spec.Channel {
	return spec.Channel{Source: a, Destination: b, Active: true, Public: true}
}

// A has two active public channels, B has one.
func scenario() *lntest.Client {
	return &lntest.Client{
		Nodes: []spec.NetworkNode{
			{ID: "A", Addresses: []spec.NetworkAddress{addr("10.0.0.1")}},
			{ID: "B", Addresses: []spec.NetworkAddress{addr("10.0.0.2")}},
			{ID: "C"},
		},
		Channels: []spec.Channel{
			active("A", "X"),
			active("A", "Y"),
			active("B", "Z"),
		},
		Peers: []spec.Peer{
			{ID: "A", Connected: true, NumChannels: 0},
			{ID: "W", Connected: true, NumChannels: 3},
		},
	}
}

func options(connect, fund bool) Options {
	return Options{
		Connect:           connect,
		Fund:              fund,
		Workers:           4,
		MinActiveChannels: 2,
		CallTimeout:       time.Second,
		Connector:         connector.DefaultConfig(),
		Funder:            funder.DefaultConfig(),
	}
}

func journal(t *testing.T) *store.SQLiteStore {
	db, err := store.NewSQLiteStore(store.MemoryDB, context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConnectAndFund(t *testing.T) {
	client := scenario()
	db := journal(t)
	job := New(client, db, options(true, true), nil)

	require.NoError(t, job.Execute(context.Background()))

	assert.Equal(t, []lntest.ConnectCall{{NodeID: "A", Host: "10.0.0.1", Port: 9735}}, client.Connects())
	require.Len(t, client.Fundings(), 1)
	fund := client.Fundings()[0]
	assert.Equal(t, "A", fund.PeerID)
	assert.Equal(t, int64(16000000), fund.AmountSats)
	assert.Equal(t, int64(8000000000), fund.PushMsat)

	st := job.Status()
	assert.Equal(t, StageDone, st.Stage)
	assert.Equal(t, 2, st.Nodes)
	assert.Equal(t, 3, st.Channels)
	assert.Equal(t, 1, st.Eligible)
	assert.Equal(t, 1, st.Connected)
	assert.Equal(t, 1, st.Funded)
	assert.Empty(t, st.Error)

	counts, err := db.Summary(job.RunID())
	require.NoError(t, err)
	assert.Equal(t, []spec.OutcomeCount{
		{Stage: spec.StageConnect, Outcome: "succeeded", Count: 1},
		{Stage: spec.StageFund, Outcome: "succeeded", Count: 1},
	}, counts)
}

func TestNoStagesSelected(t *testing.T) {
	client := scenario()
	job := New(client, nil, options(false, false), nil)

	require.NoError(t, job.Execute(context.Background()))
	assert.Empty(t, client.Connects())
	assert.Empty(t, client.Fundings())
	assert.Equal(t, 1, job.Status().Eligible)
}

func TestFundOnly(t *testing.T) {
	client := scenario()
	job := New(client, nil, options(false, true), nil)

	require.NoError(t, job.Execute(context.Background()))
	assert.Empty(t, client.Connects())
	assert.Len(t, client.Fundings(), 1)
}

func TestFailedAttemptsDoNotFailTheRun(t *testing.T) {
	client := scenario()
	client.ConnectFn = func(ctx context.Context, call lntest.ConnectCall) error {
		return lntest.ErrRejected
	}
	client.FundFn = func(ctx context.Context, call lntest.FundCall) error {
		return lntest.ErrRejected
	}
	db := journal(t)
	job := New(client, db, options(true, true), nil)

	require.NoError(t, job.Execute(context.Background()))
	st := job.Status()
	assert.Equal(t, 0, st.Connected)
	assert.Equal(t, 0, st.Funded)

	counts, err := db.Summary(job.RunID())
	require.NoError(t, err)
	assert.Equal(t, []spec.OutcomeCount{
		{Stage: spec.StageConnect, Outcome: "remote-error", Count: 1},
		{Stage: spec.StageFund, Outcome: "remote-error", Count: 1},
	}, counts)
}

func TestSnapshotFailure(t *testing.T) {
	client := scenario()
	client.ListErr = errors.New("socket closed")
	job := New(client, nil, options(true, true), nil)

	err := job.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listchannels")
	assert.Empty(t, client.Connects())

	st := job.Status()
	assert.Equal(t, StageFailed, st.Stage)
	assert.Contains(t, st.Error, "socket closed")
}

func TestRunCallsDone(t *testing.T) {
	client := scenario()
	done := make(chan struct{})
	job := New(client, nil, options(true, false), func() { close(done) })
	job.Context = context.Background()

	go job.Run()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	assert.NoError(t, job.Err())
	assert.Len(t, client.Connects(), 1)
}

func TestRunIDsAreUnique(t *testing.T) {
	a := New(scenario(), nil, options(false, false), nil)
	b := New(scenario(), nil, options(false, false), nil)
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestInterruptedRunFails(t *testing.T) {
	client := scenario()
	ctx, cancel := context.WithCancel(context.Background())
	client.ConnectFn = func(ctx context.Context, call lntest.ConnectCall) error {
		cancel()
		return lntest.Hang(ctx)
	}
	db := journal(t)
	job := New(client, db, options(true, true), nil)

	err := job.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.Fundings())
	assert.Equal(t, StageFailed, job.Status().Stage)

	counts, err := db.Summary(job.RunID())
	require.NoError(t, err)
	assert.Equal(t, []spec.OutcomeCount{
		{Stage: spec.StageConnect, Outcome: "cancelled", Count: 1},
	}, counts)
}

func TestRunStopsGovernor(t *testing.T) {
	client := scenario()
	gov := governor.New()
	job := New(client, nil, options(true, true), gov.Shutdown)
	gov.Add("airdrop", job)
	gov.Start()

	stopped := make(chan struct{})
	go func() {
		gov.WaitForShutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("governor still running after the run finished")
	}
	assert.NoError(t, job.Err())
	assert.Equal(t, StageDone, job.Status().Stage)
	assert.Len(t, client.Fundings(), 1)
}

func TestDefaultChannelThreshold(t *testing.T) {
	opts := options(false, false)
	opts.MinActiveChannels = 0
	job := New(scenario(), nil, opts, nil)

	require.NoError(t, job.Execute(context.Background()))
	// B has a single active channel and stays out.
	assert.Equal(t, 1, job.Status().Eligible)
}
