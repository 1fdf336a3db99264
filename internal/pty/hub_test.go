package pty

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestHubBroadcast(t *testing.T) {
	p, err := New("/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("failed to create PTY: %v", err)
	}
	defer p.Close()

	hub := NewHub(p)
	go hub.Run()
	defer hub.Stop()

	client1 := make(chan []byte, 100)
	client2 := make(chan []byte, 100)

	hub.Register(client1)
	hub.Register(client2)

	time.Sleep(50 * time.Millisecond)

	p.Write([]byte("echo test123\n"))

	var wg sync.WaitGroup
	wg.Add(2)

	checkClient := func(name string, ch chan []byte) {
		defer wg.Done()
		var received []byte
		timeout := time.After(3 * time.Second)
		for {
			select {
			case data := <-ch:
				received = append(received, data...)
				if bytes.Contains(received, []byte("test123")) {
					return
				}
			case <-timeout:
				t.Errorf("%s: timeout waiting for output", name)
				return
			}
		}
	}

	go checkClient("client1", client1)
	go checkClient("client2", client2)

	wg.Wait()
}

func TestHubUnregister(t *testing.T) {
	p, err := New("/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("failed to create PTY: %v", err)
	}
	defer p.Close()

	hub := NewHub(p)
	go hub.Run()
	defer hub.Stop()

	client := make(chan []byte, 100)
	hub.Register(client)
	time.Sleep(50 * time.Millisecond)

	hub.Unregister(client)
	time.Sleep(50 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients after unregister, got %d", hub.ClientCount())
	}
}

func TestHubRegisterAfterStop(t *testing.T) {
	p, err := New("/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("failed to create PTY: %v", err)
	}
	defer p.Close()

	hub := NewHub(p)
	go hub.Run()
	hub.Stop()
	time.Sleep(50 * time.Millisecond)

	client := make(chan []byte, 1)
	if hub.Register(client) {
		t.Error("expected register to fail after stop")
	}
}

func TestHubWriteAndResize(t *testing.T) {
	p, err := New("/bin/sh", 80, 24)
	if err != nil {
		t.Fatalf("failed to create PTY: %v", err)
	}
	defer p.Close()

	hub := NewHub(p)
	go hub.Run()
	defer hub.Stop()

	if _, err := hub.Write([]byte("true\n")); err != nil {
		t.Errorf("write failed: %v", err)
	}
	if err := hub.Resize(120, 40); err != nil {
		t.Errorf("resize failed: %v", err)
	}
}
