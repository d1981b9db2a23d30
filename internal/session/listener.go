package session

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/zelana-labs/sequencer/internal/mempool"
	"github.com/zelana-labs/sequencer/pkg/types"
)

// Packet kinds, per spec.md §6's datagram wire format.
const (
	PacketClientHello byte = 0x01
	PacketServerHello byte = 0x02
	PacketAppData     byte = 0x03
)

const maxDatagramSize = 1500

// TxSubmitter admits a decoded envelope into the pipeline.
type TxSubmitter interface {
	Submit(env *mempool.Envelope) error
}

// Listener is the ingress task: one goroutine reading a UDP socket,
// performing the handshake for new peers and decrypting/forwarding
// APP_DATA records for established ones. A transaction the submitter
// rejects (for example with a full mempool) is logged and the datagram
// dropped.
type Listener struct {
	conn    net.PacketConn
	manager *Manager
	submit  TxSubmitter
	log     *logrus.Entry

	serverPriv, serverPub [32]byte
}

// NewListener binds a UDP socket on addr and returns a Listener ready
// for Run.
func NewListener(addr string, manager *Manager, submit TxSubmitter, log *logrus.Entry) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Listener{
		conn: conn, manager: manager, submit: submit,
		log:        log.WithField("component", "session"),
		serverPriv: priv, serverPub: pub,
	}, nil
}

func (l *Listener) Close() error {
	return l.conn.Close()
}

// Run reads datagrams until the connection is closed (typically via
// ctx cancellation closing it from another goroutine).
func (l *Listener) Run() error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			return err
		}
		l.handlePacket(addr, append([]byte(nil), buf[:n]...))
	}
}

func (l *Listener) handlePacket(addr net.Addr, packet []byte) {
	if len(packet) < 1 {
		return
	}
	kind, payload := packet[0], packet[1:]

	switch kind {
	case PacketClientHello:
		l.handleClientHello(addr, payload)
	case PacketAppData:
		l.handleAppData(addr, payload)
	default:
		// Unknown kind, or a stray SERVER_HELLO from a misbehaving
		// peer: silently dropped, per spec.md §6.
	}
}

func (l *Listener) handleClientHello(addr net.Addr, payload []byte) {
	if len(payload) != 32 {
		return
	}
	var clientPub [32]byte
	copy(clientPub[:], payload)

	shared, err := SharedSecret(l.serverPriv, clientPub)
	if err != nil {
		l.log.WithError(err).Warn("handshake: failed to compute shared secret")
		return
	}
	keys, err := Derive(shared, clientPub, l.serverPub)
	if err != nil {
		l.log.WithError(err).Warn("handshake: failed to derive session keys")
		return
	}
	l.manager.Insert(addr, keys)

	reply := make([]byte, 0, 33)
	reply = append(reply, PacketServerHello)
	reply = append(reply, l.serverPub[:]...)
	if _, err := l.conn.WriteTo(reply, addr); err != nil {
		l.log.WithError(err).Warn("handshake: failed to send SERVER_HELLO")
	}
}

func (l *Listener) handleAppData(addr net.Addr, payload []byte) {
	sess, ok := l.manager.Get(addr)
	if !ok {
		// Peers that send APP_DATA without a session are dropped
		// silently, per spec.md §4.5.
		return
	}
	if len(payload) < 12 {
		return
	}
	nonce, ciphertext := payload[:12], payload[12:]

	plaintext, err := sess.Keys.Decrypt(nonce, ciphertext)
	if err != nil {
		l.log.WithError(err).WithField("addr", addr.String()).Debug("rejected app_data record")
		return
	}
	l.manager.Touch(addr)

	env, err := decodeEnvelope(plaintext)
	if err != nil {
		l.log.WithError(err).WithField("addr", addr.String()).Debug("failed to decode tx envelope")
		return
	}
	if err := l.submit.Submit(env); err != nil {
		l.log.WithError(err).WithField("addr", addr.String()).Debug("tx rejected at admission")
	}
}

// decodeEnvelope dispatches on the wire-format tag pkg/types' Encode*
// functions write, producing the envelope type internal/mempool
// expects.
func decodeEnvelope(b []byte) (*mempool.Envelope, error) {
	tag, err := types.PeekTxType(b)
	if err != nil {
		return nil, err
	}
	switch tag {
	case types.TxTransfer:
		tx, err := types.DecodeTransparentTx(b)
		if err != nil {
			return nil, err
		}
		return mempool.NewTransparentEnvelope(tx), nil
	case types.TxWithdraw:
		tx, err := types.DecodeWithdrawalTx(b)
		if err != nil {
			return nil, err
		}
		return mempool.NewWithdrawalEnvelope(tx), nil
	case types.TxShielded:
		tx, err := types.DecodeShieldedTx(b)
		if err != nil {
			return nil, err
		}
		return mempool.NewShieldedEnvelope(tx), nil
	default:
		return nil, types.ErrShortBuffer
	}
}
