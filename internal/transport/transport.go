// Package transport implements the public mesh endpoint: the wire
// encoding of internal/message collections is wrapped in an encrypted
// envelope keyed from the configured shared secret, so two nodes that
// do not share a secret cannot exchange traffic even if they can reach
// each other's sockets.
package transport

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/route-beacon/meshd/internal/message"
)

const hkdfInfo = "meshd-public-transport-v1"

// sealer derives a chacha20poly1305 key from a shared secret and
// seals/opens envelopes: [nonce][ciphertext+tag].
type sealer struct {
	aead cipherAEAD
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

func newSealer(secret string) (*sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("transport: empty secret")
	}
	hkdfReader := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("transport: deriving key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("transport: building aead: %w", err)
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("transport: generating nonce: %w", err)
	}
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (s *sealer) open(envelope []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(envelope) < n {
		return nil, fmt.Errorf("transport: envelope shorter than nonce")
	}
	nonce, ciphertext := envelope[:n], envelope[n:]
	return s.aead.Open(nil, nonce, ciphertext, nil)
}

// legacyDigestSeal appends a sha256 digest of the secret followed by
// the plaintext instead of encrypting it, matching a deployment still running the pre-AEAD
// scheme. Callers choose this only via PublicHTTPConfig.LegacyDigestMode.
func legacyDigestSeal(plaintext, secret []byte) []byte {
	h := sha256.Sum256(append(append([]byte{}, secret...), plaintext...))
	out := make([]byte, 0, len(plaintext)+len(h))
	out = append(out, plaintext...)
	out = append(out, h[:]...)
	return out
}

func legacyDigestOpen(envelope, secret []byte) ([]byte, error) {
	if len(envelope) < sha256.Size {
		return nil, fmt.Errorf("transport: envelope shorter than digest")
	}
	split := len(envelope) - sha256.Size
	plaintext, digest := envelope[:split], envelope[split:]
	want := sha256.Sum256(append(append([]byte{}, secret...), plaintext...))
	if !bytes.Equal(digest, want[:]) {
		return nil, fmt.Errorf("transport: digest mismatch")
	}
	return plaintext, nil
}

// Client sends message collections to other nodes' public endpoints.
type Client struct {
	HTTP                 *http.Client
	Secret               string
	Endpoint             string
	CompressionThreshold int
	LegacyDigestMode     bool

	sealer *sealer
}

func NewClient(secret, endpoint string, compressionThreshold int, legacyDigestMode bool) (*Client, error) {
	c := &Client{
		HTTP:                 &http.Client{Timeout: 10 * time.Second},
		Secret:               secret,
		Endpoint:             endpoint,
		CompressionThreshold: compressionThreshold,
		LegacyDigestMode:     legacyDigestMode,
	}
	if !legacyDigestMode {
		s, err := newSealer(secret)
		if err != nil {
			return nil, err
		}
		c.sealer = s
	}
	return c, nil
}

// Send encodes, encrypts, and POSTs mc to url+Endpoint, decrypting and
// decoding whatever collection came back in the response body.
func (c *Client) Send(ctx context.Context, url string, mc message.MessageCollection) (message.MessageCollection, error) {
	encoded, err := message.Encode(mc, c.CompressionThreshold)
	if err != nil {
		return message.MessageCollection{}, fmt.Errorf("transport: encoding outbound collection: %w", err)
	}

	envelope, err := c.sealBytes(encoded)
	if err != nil {
		return message.MessageCollection{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+c.Endpoint, bytes.NewReader(envelope))
	if err != nil {
		return message.MessageCollection{}, fmt.Errorf("transport: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return message.MessageCollection{}, fmt.Errorf("transport: sending to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return message.MessageCollection{}, fmt.Errorf("transport: %s replied with status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return message.MessageCollection{}, fmt.Errorf("transport: reading reply body: %w", err)
	}
	if len(body) == 0 {
		return message.MessageCollection{}, nil
	}

	plaintext, err := c.openBytes(body)
	if err != nil {
		return message.MessageCollection{}, err
	}
	mcReply, err := message.Decode(plaintext)
	if err != nil {
		return message.MessageCollection{}, fmt.Errorf("transport: decoding reply: %w", err)
	}
	return mcReply, nil
}

func (c *Client) sealBytes(plaintext []byte) ([]byte, error) {
	if c.LegacyDigestMode {
		return legacyDigestSeal(plaintext, []byte(c.Secret)), nil
	}
	return c.sealer.seal(plaintext)
}

func (c *Client) openBytes(envelope []byte) ([]byte, error) {
	if c.LegacyDigestMode {
		return legacyDigestOpen(envelope, []byte(c.Secret))
	}
	return c.sealer.open(envelope)
}

// Processor decodes and acts on an inbound collection. Satisfied
// structurally by internal/processor.Processor.
type Processor interface {
	Process(mc message.MessageCollection) message.MessageCollection
}

// Server is the public mesh HTTP endpoint: it decrypts the request
// body, hands the decoded collection to Handler, and encrypts whatever
// collection comes back as the response body.
type Server struct {
	Client  *Client
	Handler Processor
}

func NewServer(client *Client, handler Processor) *Server {
	return &Server{Client: client, Handler: handler}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	plaintext, err := s.Client.openBytes(body)
	if err != nil {
		http.Error(w, "decrypting envelope", http.StatusUnauthorized)
		return
	}
	mc, err := message.Decode(plaintext)
	if err != nil {
		http.Error(w, "decoding collection", http.StatusBadRequest)
		return
	}

	reply := s.Handler.Process(mc)

	encoded, err := message.Encode(reply, s.Client.CompressionThreshold)
	if err != nil {
		http.Error(w, "encoding reply", http.StatusInternalServerError)
		return
	}
	envelope, err := s.Client.sealBytes(encoded)
	if err != nil {
		http.Error(w, "encrypting reply", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(envelope)
}
