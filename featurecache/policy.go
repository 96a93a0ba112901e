package featurecache

import "container/list"

// Policy decides which key leaves the cache when it is full.
type Policy interface {
	// Added records a newly stored key.
	Added(key string)
	// Accessed records a hit on key.
	Accessed(key string)
	// Removed forgets key.
	Removed(key string)
	// Victim returns the key to evict next.
	Victim() (string, bool)
}

type orderedPolicy struct {
	order    *list.List
	elements map[string]*list.Element
	lru      bool
}

// FIFO evicts in insertion order and ignores hits.
func FIFO() Policy {
	return &orderedPolicy{order: list.New(), elements: map[string]*list.Element{}}
}

// LRU evicts the least recently used key.
func LRU() Policy {
	return &orderedPolicy{order: list.New(), elements: map[string]*list.Element{}, lru: true}
}

func (p *orderedPolicy) Added(key string) {
	if el, ok := p.elements[key]; ok {
		p.order.MoveToBack(el)
		return
	}
	p.elements[key] = p.order.PushBack(key)
}

func (p *orderedPolicy) Accessed(key string) {
	if !p.lru {
		return
	}
	if el, ok := p.elements[key]; ok {
		p.order.MoveToBack(el)
	}
}

func (p *orderedPolicy) Removed(key string) {
	if el, ok := p.elements[key]; ok {
		p.order.Remove(el)
		delete(p.elements, key)
	}
}

func (p *orderedPolicy) Victim() (string, bool) {
	front := p.order.Front()
	if front == nil {
		return "", false
	}
	return front.Value.(string), true
}
