// Command tester is a websocket smoke and load client for the broker.
// It connects a handful of clients to one room, exchanges broadcasts, and
// prints a delivery summary table.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"

	"roomcast/domain"
	"roomcast/gateway"
	"roomcast/projection"
)

type testClient struct {
	name     string
	conn     *websocket.Conn
	timeline *projection.Timeline
	sent     int
}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "Broker websocket endpoint")
	room := flag.String("room", "general", "Room to join")
	clients := flag.Int("clients", 3, "Number of concurrent clients")
	messages := flag.Int("messages", 5, "Broadcasts sent per client")
	settle := flag.Duration("settle", 2*time.Second, "Time to wait for deliveries after sending")
	flag.Parse()

	pool, err := connectAll(*url, *room, *clients)
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer func() {
		for _, c := range pool {
			_ = c.conn.Close()
		}
	}()

	var wg sync.WaitGroup
	for _, c := range pool {
		wg.Add(1)
		go func(c *testClient) {
			defer wg.Done()
			c.collect()
		}(c)
	}

	for _, c := range pool {
		for i := 0; i < *messages; i++ {
			frame := gateway.Frame{
				Type:    "broadcast",
				Room:    *room,
				Payload: fmt.Sprintf("%s says hello #%d", c.name, i+1),
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				color.Red.Printf("%s: send failed: %v\n", c.name, err)
				break
			}
			c.sent++
		}
	}

	time.Sleep(*settle)
	for _, c := range pool {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
	wg.Wait()

	printSummary(pool)
}

func connectAll(url, room string, count int) ([]*testClient, error) {
	pool := make([]*testClient, 0, count)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("tester-%d", i+1)
		conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?identity=%s", url, name), nil)
		if err != nil {
			return pool, fmt.Errorf("dial for %s: %w", name, err)
		}
		color.Green.Printf("%s connected\n", name)

		if err := conn.WriteJSON(gateway.Frame{Type: "join", Room: room}); err != nil {
			return pool, fmt.Errorf("join for %s: %w", name, err)
		}
		pool = append(pool, &testClient{
			name:     name,
			conn:     conn,
			timeline: projection.NewTimeline(),
		})
	}
	return pool, nil
}

// collect drains delivered frames into the client's timeline until the
// connection closes.
func (c *testClient) collect() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame gateway.OutboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		id, err := uuid.Parse(frame.MessageID)
		if err != nil {
			// Gateway-level notices carry no message id.
			continue
		}
		c.timeline.Add(domain.Message{
			ID:      id,
			Seq:     frame.Seq,
			Sender:  domain.ConnectionID(frame.Sender),
			Room:    frame.Room,
			Payload: []byte(frame.Payload),
		})
	}
}

func printSummary(pool []*testClient) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Client", "Sent", "Received", "First Seq", "Last Seq"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, c := range pool {
		ordered := c.timeline.Ordered()
		first, last := "-", "-"
		if len(ordered) > 0 {
			first = fmt.Sprintf("%d", ordered[0].Seq)
			last = fmt.Sprintf("%d", ordered[len(ordered)-1].Seq)
		}
		table.Append([]string{
			c.name,
			fmt.Sprintf("%d", c.sent),
			fmt.Sprintf("%d", c.timeline.Len()),
			first,
			last,
		})
	}

	fmt.Println()
	table.Render()
}
