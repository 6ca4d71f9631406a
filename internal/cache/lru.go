// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

// Node is a node in a doubly-linked LRU list.
// The node stores a key for O(1) deletion from the owner's index.
type Node[K comparable] struct {
	key    K
	prev   *Node[K]
	next   *Node[K]
	linked bool
}

// List is a doubly-linked list for LRU eviction.
// The list is not thread-safe; callers must handle synchronization.
//
// The head is the most recently used, tail is least recently used.
type List[K comparable] struct {
	head *Node[K]
	tail *Node[K]
	len  int
}

// NewList creates an empty LRU list.
func NewList[K comparable]() *List[K] {
	return &List[K]{}
}

// Len returns the number of nodes in the list.
func (l *List[K]) Len() int {
	return l.len
}

// PushFront adds a new node at the front (most recently used).
// Returns the created node for later access.
func (l *List[K]) PushFront(key K) *Node[K] {
	node := &Node[K]{key: key}
	l.linkFront(node)
	return node
}

// PushBack adds a new node at the back (least recently used).
// Used to seed a ring of free slots that should be consumed first.
func (l *List[K]) PushBack(key K) *Node[K] {
	node := &Node[K]{key: key, linked: true}
	if l.tail == nil {
		l.head = node
		l.tail = node
	} else {
		node.prev = l.tail
		l.tail.next = node
		l.tail = node
	}
	l.len++
	return node
}

// MoveToFront moves an existing node to the front (most recently used).
// A node that was removed is linked again.
func (l *List[K]) MoveToFront(node *Node[K]) {
	if node == nil || node == l.head {
		return
	}
	if node.linked {
		l.unlink(node)
	}
	l.linkFront(node)
}

// MoveToBack moves a node to the back so it is the next eviction candidate.
func (l *List[K]) MoveToBack(node *Node[K]) {
	if node == nil || node == l.tail {
		return
	}
	if node.linked {
		l.unlink(node)
	}
	node.linked = true
	node.next = nil
	node.prev = l.tail
	if l.tail != nil {
		l.tail.next = node
	}
	l.tail = node
	if l.head == nil {
		l.head = node
	}
	l.len++
}

// Remove removes a node from the list.
func (l *List[K]) Remove(node *Node[K]) {
	if node == nil || !node.linked {
		return
	}
	l.unlink(node)
}

// RemoveOldest removes and returns the key of the least recently used node.
// Returns zero value and false if list is empty.
func (l *List[K]) RemoveOldest() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}

	node := l.tail
	l.unlink(node)
	return node.key, true
}

// Oldest returns the key of the least recently used node without removing it.
// Returns zero value and false if list is empty.
func (l *List[K]) Oldest() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	return l.tail.key, true
}

func (l *List[K]) linkFront(node *Node[K]) {
	node.linked = true
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

// unlink removes a node from the list and clears its pointers.
func (l *List[K]) unlink(node *Node[K]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}

	node.prev = nil
	node.next = nil
	node.linked = false
	l.len--
}
