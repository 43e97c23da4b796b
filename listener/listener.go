// Package listener provides the gateway's single-port listener. Incoming
// connections are peeked to tell TLS handshakes from plaintext so HTTPS and
// HTTP can be served on the same port.
package listener

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// peekTimeout bounds how long a freshly accepted connection may stay silent
// before it is rejected.
const peekTimeout = 10 * time.Second

// connWrapper wraps a net.Conn so reads go through the buffered reader that
// already holds the peeked bytes.
type connWrapper struct {
	net.Conn
	reader *bufio.Reader
}

func (wrapper *connWrapper) Read(buffer []byte) (int, error) {
	return wrapper.reader.Read(buffer)
}

// ProtocolMuxListener wraps a net.Listener and inspects the first bytes of
// each connection. TLS handshake records (0x16 0x03) are terminated with the
// configured tls.Config, anything else passes through as plaintext.
type ProtocolMuxListener struct {
	net.Listener
	TLSConfig *tls.Config
}

func NewProtocolMuxListener(listener net.Listener, tlsConfig *tls.Config) *ProtocolMuxListener {
	return &ProtocolMuxListener{
		Listener:  listener,
		TLSConfig: tlsConfig,
	}
}

func (listener *ProtocolMuxListener) Accept() (net.Conn, error) {
	rawConnection, err := listener.Listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("accepting connection: %w", err)
	}

	bufferedReader := bufio.NewReader(rawConnection)

	err = rawConnection.SetReadDeadline(time.Now().Add(peekTimeout))
	if err != nil {
		rawConnection.Close()
		return nil, fmt.Errorf("setting read deadline for peek: %w", err)
	}

	peekedBytes, err := bufferedReader.Peek(5)

	if err := rawConnection.SetReadDeadline(time.Time{}); err != nil {
		rawConnection.Close()
		return nil, fmt.Errorf("clearing read deadline after peek: %w", err)
	}
	if err != nil {
		if err != bufio.ErrBufferFull {
			rawConnection.Close()
			return nil, fmt.Errorf("peeking initial bytes: %w", err)
		}
	}

	isTLS := len(peekedBytes) >= 2 && peekedBytes[0] == 0x16 && peekedBytes[1] == 0x03

	if isTLS {
		tlsConn := tls.Server(&connWrapper{
			Conn:   rawConnection,
			reader: bufferedReader,
		}, listener.TLSConfig)

		err := rawConnection.SetReadDeadline(time.Now().Add(peekTimeout))
		if err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("setting read deadline for handshake: %w", err)
		}

		err = tlsConn.Handshake()
		if err != nil {
			rawConnection.SetReadDeadline(time.Time{})
			tlsConn.Close()
			return nil, fmt.Errorf("performing tls handshake: %w", err)
		}
		err = rawConnection.SetReadDeadline(time.Time{})
		if err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("clearing read deadline after handshake: %w", err)
		}
		return tlsConn, nil
	}
	return &connWrapper{
		Conn:   rawConnection,
		reader: bufferedReader,
	}, nil
}

// ResilientListener wraps a net.Listener so the accept loop survives
// per-connection errors. A bad handshake or a silent client rejects that
// connection without taking the gateway down; only a closed listener
// propagates.
type ResilientListener struct {
	net.Listener
}

func NewResilientListener(listenerToWrap net.Listener) *ResilientListener {
	return &ResilientListener{Listener: listenerToWrap}
}

// Accept retries on recoverable errors and returns only usable connections.
// A closed listener propagates net.ErrClosed so the serve loop can stop.
func (listener *ResilientListener) Accept() (net.Conn, error) {
	for {
		conn, err := listener.Listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, err
			}

			log.Printf("recoverable listener error, connection rejected: %v", err)
			continue
		}
		return conn, nil
	}
}
