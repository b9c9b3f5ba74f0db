package orbus

import "sync"

type queueItem struct {
	pkt  *Packet
	next *queueItem
}

type packetList struct {
	head *queueItem
	tail *queueItem
	size int
}

func (l *packetList) append(item *queueItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
	l.size++
}

func (l *packetList) splice(src *packetList) {
	l.head, l.tail, l.size = src.head, src.tail, src.size
	src.head, src.tail, src.size = nil, nil, 0
}

func (l *packetList) packets() []*Packet {
	pkts := make([]*Packet, 0, l.size)
	for item := l.head; item != nil; item = item.next {
		pkts = append(pkts, item.pkt)
	}
	return pkts
}

// Queue holds packets pending for transmission.
// Appends are safe from multiple goroutines, a single sender drains.
type Queue struct {
	pending packetList
	lock    sync.Mutex
}

// Append adds packets in order.
func (q *Queue) Append(pkts ...*Packet) *Queue {
	q.lock.Lock()
	for _, pkt := range pkts {
		q.pending.append(&queueItem{pkt: pkt})
	}
	q.lock.Unlock()
	return q
}

// Len returns the count of pending packets.
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.pending.size
}

// Drain takes all pending packets and empties the queue.
func (q *Queue) Drain() []*Packet {
	var taken packetList
	q.lock.Lock()
	taken.splice(&q.pending)
	q.lock.Unlock()
	return taken.packets()
}

// DrainIf calls fn with the pending packets and empties the queue
// only if fn succeeds. fn runs with the queue locked and must not block.
func (q *Queue) DrainIf(fn func([]*Packet) error) ([]*Packet, error) {
	q.lock.Lock()
	defer q.lock.Unlock()
	pkts := q.pending.packets()
	if err := fn(pkts); err != nil {
		return nil, err
	}
	q.pending = packetList{}
	return pkts, nil
}

// Reset discards all pending packets.
func (q *Queue) Reset() {
	q.lock.Lock()
	q.pending = packetList{}
	q.lock.Unlock()
}
