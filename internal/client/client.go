// Package client implements the terminal side of the line relay: stdin lines
// go to the server, lines from the server are printed.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// Run connects to the relay at addr and pumps lines in both directions.
// When stdin ends the write half is closed and Run waits for the server to
// finish; when the server closes the connection Run returns immediately.
func Run(ctx context.Context, addr string, stdin io.Reader, stdout io.Writer) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	fmt.Fprintf(stdout, "Connected to the chat server at %s. Type your messages below:\n", addr)

	received := make(chan error, 1)
	go func() {
		received <- receive(conn, stdout)
	}()

	sent := make(chan error, 1)
	go func() {
		sent <- send(conn, stdin)
	}()

	select {
	case err := <-sent:
		if err != nil {
			_ = conn.Close()
			<-received
			return err
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		} else {
			_ = conn.Close()
		}
		return <-received
	case err := <-received:
		return err
	case <-ctx.Done():
		_ = conn.Close()
		<-received
		return ctx.Err()
	}
}

func send(conn net.Conn, stdin io.Reader) error {
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if _, err := fmt.Fprintf(conn, "%s\n", scanner.Text()); err != nil {
			return fmt.Errorf("sending message: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func receive(conn net.Conn, stdout io.Writer) error {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Fprintf(stdout, "Received: %s\n", scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("receiving messages: %w", err)
	}
	return nil
}
