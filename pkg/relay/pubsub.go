package relay

import (
	"context"
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

const DefaultTopic = "secret-orderbook/outbound/1.0.0"

type PubSubConfig struct {
	ListenAddr string
	Bootstrap  []string
	Topic      string
	Source     string
	Logger     *zap.SugaredLogger
}

// PubSubDispatcher gossips outbound messages to every peer subscribed to the
// topic, such as asset ledger relayers.
type PubSubDispatcher struct {
	h      host.Host
	ps     *pubsub.PubSub
	topic  *pubsub.Topic
	source string
	log    *zap.SugaredLogger
}

func NewPubSubDispatcher(ctx context.Context, cfg PubSubConfig) (*PubSubDispatcher, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to join topic %s: %w", cfg.Topic, err)
	}

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic)
	return &PubSubDispatcher{h: h, ps: ps, topic: topic, source: cfg.Source, log: cfg.Logger}, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (d *PubSubDispatcher) Host() host.Host { return d.h }

func (d *PubSubDispatcher) Dispatch(ctx context.Context, msgs []msg.CosmosMsg) error {
	for i, m := range msgs {
		data, err := encodeEnvelope(Envelope{Source: d.source, Index: i, Message: m})
		if err != nil {
			return err
		}
		if err := d.topic.Publish(ctx, data); err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
	}
	return nil
}

// Subscribe calls fn for every envelope seen on the topic until ctx ends.
// Malformed payloads are skipped.
func (d *PubSubDispatcher) Subscribe(ctx context.Context, fn func(Envelope)) error {
	sub, err := d.topic.Subscribe()
	if err != nil {
		return err
	}
	go func() {
		defer sub.Cancel()
		for {
			m, err := sub.Next(ctx)
			if err != nil {
				return
			}
			env, err := DecodeEnvelope(m.Data)
			if err != nil {
				d.log.Debugw("bad_envelope", "from", m.ReceivedFrom.String(), "err", err)
				continue
			}
			fn(env)
		}
	}()
	return nil
}

func (d *PubSubDispatcher) Close() error {
	if err := d.topic.Close(); err != nil {
		d.log.Debugw("topic_close_failed", "err", err)
	}
	return d.h.Close()
}
