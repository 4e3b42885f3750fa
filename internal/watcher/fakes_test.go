package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"solana-copy-bot/internal/domain"
	"solana-copy-bot/internal/eventbus"
	"solana-copy-bot/internal/solana"
)

var errClosed = errors.New("use of closed connection")

type fakeConn struct {
	msgs      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	mu      sync.Mutex
	filters []solana.TransactionFilter
	beats   int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) SubscribeTransactions(filter solana.TransactionFilter) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, filter)
	return "copybot-tx-1", nil
}

func (c *fakeConn) SubscribeHeartbeat() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beats++
	return "copybot-heartbeat-2", nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, errClosed
	default:
	}
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(msg string) { c.msgs <- []byte(msg) }

// fakeDialer hands out a new fakeConn per endpoint dial.
type fakeDialer struct {
	mu    sync.Mutex
	err   error
	dials map[string]int
	conns map[string]chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		dials: make(map[string]int),
		conns: make(map[string]chan *fakeConn),
	}
}

func (d *fakeDialer) connCh(endpoint string) chan *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.conns[endpoint]
	if !ok {
		ch = make(chan *fakeConn, 32)
		d.conns[endpoint] = ch
	}
	return ch
}

func (d *fakeDialer) Dial(_ context.Context, endpoint string, _ func(time.Duration)) (solana.StreamConn, error) {
	d.mu.Lock()
	d.dials[endpoint]++
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := newFakeConn()
	d.connCh(endpoint) <- c
	return c, nil
}

func (d *fakeDialer) dialCount(endpoint string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[endpoint]
}

// next waits for the next connection dialed to endpoint.
func (d *fakeDialer) next(endpoint string, timeout time.Duration) (*fakeConn, error) {
	select {
	case c := <-d.connCh(endpoint):
		return c, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no dial to %s within %v", endpoint, timeout)
	}
}

// memStore is an in-memory TxStore.
type memStore struct {
	mu  sync.Mutex
	txs []*domain.TxNotification
}

func (s *memStore) SaveTx(_ context.Context, tx *domain.TxNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
	return nil
}

func (s *memStore) RecentTx(_ context.Context, limit int) ([]*domain.TxNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.txs) > limit {
		return append([]*domain.TxNotification(nil), s.txs[len(s.txs)-limit:]...), nil
	}
	return append([]*domain.TxNotification(nil), s.txs...), nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

// recorder collects published tx notifications.
type recorder struct {
	ch chan *domain.TxNotification
}

func newRecorder(bus *eventbus.Bus) *recorder {
	r := &recorder{ch: make(chan *domain.TxNotification, 64)}
	bus.Subscribe(eventbus.KindTxNotification, func(ev eventbus.Event) error {
		r.ch <- ev.Payload.(*domain.TxNotification)
		return nil
	})
	return r
}

func txMessage(signature string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","method":"transactionNotification","params":{"subscription":1,"result":{
"signature":%q,"slot":42,
"transaction":{"transaction":{"signatures":[%q],"message":{
"accountKeys":[{"pubkey":"7YttLkHDoNj9wyDur5pM1ejNaAvT9X4eqaYcHQqtj2G5","signer":true,"writable":true}],
"instructions":[]}},
"meta":{"err":null,"fee":5000,"preBalances":[1000000],"postBalances":[995000]}}}}}`, signature, signature)
}

const heartbeatMessage = `{"jsonrpc":"2.0","method":"accountNotification","params":{"subscription":2,"result":{
"context":{"slot":1000},
"value":{"data":{"program":"sysvar","parsed":{"type":"clock","info":{"slot":1000}}},"owner":"Sysvar1111111111111111111111111111111111111"}}}}`
