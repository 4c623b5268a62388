package scene

// list is an intrusive doubly-linked list over entity ids. The links live on
// the entities themselves.
type list struct {
	first, last EntityID
}

// insertBefore links e in front of next (at the back when next is NoEntity).
func (s *Scene) insertBefore(l *list, e *Entity, next EntityID) {
	e.next = next
	var prev EntityID
	if next == l.first {
		l.first = e.id
	}
	if next != NoEntity {
		n := s.at(next)
		prev = n.prev
		n.prev = e.id
	} else {
		prev = l.last
		l.last = e.id
	}
	e.prev = prev
	if prev != NoEntity {
		s.at(prev).next = e.id
	}
}

// unlink removes e from the list. e keeps its own prev/next.
func (s *Scene) unlink(l *list, e *Entity) {
	if e.prev != NoEntity {
		s.at(e.prev).next = e.next
	} else {
		l.first = e.next
	}
	if e.next != NoEntity {
		s.at(e.next).prev = e.prev
	} else {
		l.last = e.prev
	}
}

func (s *Scene) ids(l *list) []EntityID {
	var out []EntityID
	for id := l.first; id != NoEntity; id = s.at(id).next {
		out = append(out, id)
	}
	return out
}
