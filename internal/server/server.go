package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/npezzotti/roomchat/internal/chat"
	"github.com/npezzotti/roomchat/internal/database"
	"github.com/npezzotti/roomchat/internal/presence"
	"github.com/npezzotti/roomchat/internal/pubsub"
	"github.com/npezzotti/roomchat/internal/stats"
	"github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval = 60 * time.Second
	relayQueueSize       = 512
	relayTimeout         = 2 * time.Second
	relayRetryDelay      = time.Second
)

type stopReq struct {
	done chan struct{}
}

type quarantineKey struct {
	owner string
	field string
	raw   string
}

// ChatServer owns all room state. Every socket event, request and sweep
// runs as one turn of the Run loop, so turns never interleave.
type ChatServer struct {
	log           logrus.FieldLogger
	db            database.RoomChatRepository
	stats         stats.StatsProvider
	presence      *presence.Tracker
	relay         pubsub.Relay
	policy        chat.DecodePolicy
	sweepInterval time.Duration
	now           func() time.Time

	clients     map[*Client]struct{}
	userMap     map[string]map[*Client]struct{}
	roomSubs    map[string]map[*Client]struct{}
	quarantined map[quarantineKey]struct{}

	registerChan   chan *Client
	deregisterChan chan *Client
	clientMsgChan  chan *ClientMessage
	broadcastChan  chan pubsub.Envelope
	execChan       chan func()
	relayChan      chan pubsub.Envelope
	stop           chan stopReq
	done           chan struct{}
}

type Option func(*ChatServer)

// WithRelay fans published events out to other processes.
func WithRelay(r pubsub.Relay) Option {
	return func(cs *ChatServer) {
		cs.relay = r
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(cs *ChatServer) {
		if d > 0 {
			cs.sweepInterval = d
		}
	}
}

func WithDecodePolicy(p chat.DecodePolicy) Option {
	return func(cs *ChatServer) {
		cs.policy = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(cs *ChatServer) {
		cs.now = now
	}
}

func WithPresence(t *presence.Tracker) Option {
	return func(cs *ChatServer) {
		cs.presence = t
	}
}

func NewChatServer(logger logrus.FieldLogger, db database.RoomChatRepository, su stats.StatsProvider, opts ...Option) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		presence:       presence.NewTracker(),
		policy:         chat.DefaultOnMalformed,
		sweepInterval:  defaultSweepInterval,
		now:            func() time.Time { return time.Now().UTC() },
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[string]map[*Client]struct{}),
		roomSubs:       make(map[string]map[*Client]struct{}),
		quarantined:    make(map[quarantineKey]struct{}),
		registerChan:   make(chan *Client),
		deregisterChan: make(chan *Client),
		clientMsgChan:  make(chan *ClientMessage, 256),
		broadcastChan:  make(chan pubsub.Envelope, 256),
		execChan:       make(chan func()),
		relayChan:      make(chan pubsub.Envelope, relayQueueSize),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cs)
	}

	su.RegisterMetric(stats.NumActiveClients)
	su.RegisterMetric(stats.NumOnlineUsers)
	su.RegisterMetric(stats.MessagesSent)
	su.RegisterMetric(stats.MessagesExpired)

	return cs, nil
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cs.relay != nil {
		go cs.relayOut(ctx)
		go cs.relayIn(ctx)
	}

	ticker := time.NewTicker(cs.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-cs.registerChan:
			cs.log.WithField("user_id", client.user.Id).Debug("adding connection")
			cs.addClient(client)
		case client := <-cs.deregisterChan:
			cs.log.WithField("user_id", client.user.Id).Debug("removing connection")
			cs.removeClient(client)
		case msg := <-cs.clientMsgChan:
			cs.handleClientMessage(msg)
		case env := <-cs.broadcastChan:
			cs.handleRemote(env)
		case fn := <-cs.execChan:
			fn()
		case <-ticker.C:
			cs.sweep()
		case req := <-cs.stop:
			cs.log.Info("stopping chat server")
			for c := range cs.clients {
				c.stopClient()
			}
			close(req.done)
			return
		}
	}
}

// exec runs fn as a turn of the Run loop and waits for it to finish.
func (cs *ChatServer) exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	turn := func() {
		defer close(done)
		fn()
	}

	select {
	case cs.execChan <- turn:
	case <-cs.done:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-done
	return nil
}

func call[T any](ctx context.Context, cs *ChatServer, fn func() (T, error)) (T, error) {
	var (
		res T
		err error
	)
	if execErr := cs.exec(ctx, func() { res, err = fn() }); execErr != nil {
		var zero T
		return zero, execErr
	}
	return res, err
}

// RegisterClient hands a connected client to the Run loop.
func (cs *ChatServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.done:
		c.stopClient()
	}
}

func (cs *ChatServer) deregisterClient(c *Client) {
	select {
	case cs.deregisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) submit(msg *ClientMessage) bool {
	select {
	case cs.clientMsgChan <- msg:
		return true
	default:
		return false
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clients[c] = struct{}{}
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}
	cs.stats.Incr(stats.NumActiveClients)

	if cs.presence.Connect(c.user.Id) {
		cs.stats.Incr(stats.NumOnlineUsers)
		cs.publish(pubsub.GlobalChannel, notification(&Notification{
			StatusChanged: &StatusChanged{UserId: c.user.Id, Online: true},
		}), c.user.Id)
	}
}

func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	if userClients, ok := cs.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userMap, c.user.Id)
		}
	}
	for roomId := range c.rooms {
		cs.unsubscribe(c, roomId)
	}
	cs.stats.Decr(stats.NumActiveClients)

	if cs.presence.Disconnect(c.user.Id) {
		cs.stats.Decr(stats.NumOnlineUsers)
		cs.publish(pubsub.GlobalChannel, notification(&Notification{
			StatusChanged: &StatusChanged{UserId: c.user.Id, Online: false},
		}), c.user.Id)
	}
}

func (cs *ChatServer) subscribe(c *Client, roomId string) {
	if cs.roomSubs[roomId] == nil {
		cs.roomSubs[roomId] = make(map[*Client]struct{})
	}
	cs.roomSubs[roomId][c] = struct{}{}
	c.rooms[roomId] = struct{}{}
}

func (cs *ChatServer) unsubscribe(c *Client, roomId string) {
	delete(c.rooms, roomId)
	if subs, ok := cs.roomSubs[roomId]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(cs.roomSubs, roomId)
		}
	}
}

// publish delivers msg to the local sessions on channel and queues it for
// the relay. Sessions of excludeUser are skipped.
func (cs *ChatServer) publish(channel string, msg *ServerMessage, excludeUser string) {
	cs.deliver(channel, msg, excludeUser)

	if cs.relay == nil {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		cs.log.WithError(err).Error("encode relayed message")
		return
	}

	select {
	case cs.relayChan <- pubsub.Envelope{Channel: channel, ExcludeUser: excludeUser, Payload: payload}:
	default:
		cs.log.WithField("channel", channel).Warn("relay queue full, dropping event")
	}
}

func (cs *ChatServer) deliver(channel string, msg *ServerMessage, excludeUser string) {
	kind, id := pubsub.ParseChannel(channel)

	var targets map[*Client]struct{}
	switch kind {
	case pubsub.KindRoom:
		targets = cs.roomSubs[id]
	case pubsub.KindUser:
		targets = cs.userMap[id]
	case pubsub.KindGlobal:
		targets = cs.clients
	default:
		cs.log.WithField("channel", channel).Warn("unknown channel")
		return
	}

	for c := range targets {
		if c == msg.SkipClient || (excludeUser != "" && c.user.Id == excludeUser) {
			continue
		}
		c.queueMessage(msg)
	}
}

func (cs *ChatServer) handleRemote(env pubsub.Envelope) {
	var msg ServerMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		cs.log.WithError(err).WithField("origin", env.Origin).Warn("dropping undecodable relayed message")
		return
	}

	cs.deliver(env.Channel, &msg, env.ExcludeUser)

	if msg.Notification != nil && msg.Notification.ForceLogout != nil {
		cs.disconnectUser(msg.Notification.ForceLogout.UserId)
	}
}

func (cs *ChatServer) relayOut(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-cs.relayChan:
			pctx, cancel := context.WithTimeout(ctx, relayTimeout)
			if err := cs.relay.Publish(pctx, env); err != nil {
				cs.log.WithError(err).WithField("channel", env.Channel).Warn("relay publish failed")
			}
			cancel()
		}
	}
}

func (cs *ChatServer) relayIn(ctx context.Context) {
	for {
		err := cs.relay.Subscribe(ctx, func(env pubsub.Envelope) {
			select {
			case cs.broadcastChan <- env:
			case <-ctx.Done():
			}
		})
		if ctx.Err() != nil {
			return
		}

		cs.log.WithError(err).Warn("relay subscription ended, retrying")
		select {
		case <-time.After(relayRetryDelay):
		case <-ctx.Done():
			return
		}
	}
}

// disconnectUser stops every local session of userId.
func (cs *ChatServer) disconnectUser(userId string) {
	for c := range cs.userMap[userId] {
		c.stopClient()
	}
}

func (cs *ChatServer) IsOnline(userId string) bool {
	return cs.presence.IsOnline(userId)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
