package generic

// Set is an unordered collection of unique comparable values.
type Set[T comparable] map[T]struct{}

// NewSet creates a Set containing the supplied values.
func NewSet[T comparable](values ...T) Set[T] {
	s := make(Set[T], len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

func (s Set[T]) Add(value T) {
	s[value] = struct{}{}
}

func (s Set[T]) Remove(value T) {
	delete(s, value)
}

func (s Set[T]) Contains(value T) bool {
	_, ok := s[value]
	return ok
}

func (s Set[T]) Len() int {
	return len(s)
}

func (s Set[T]) Clear() {
	for v := range s {
		delete(s, v)
	}
}

// ToSlice returns the set's values as a slice, in no particular order.
func (s Set[T]) ToSlice() []T {
	values := make([]T, 0, len(s))
	for v := range s {
		values = append(values, v)
	}
	return values
}

// PolymorphicSet is a Set variant keyed on `any`, for element types (such as
// interface types) that cannot satisfy the comparable constraint. Values must
// still be comparable at runtime.
type PolymorphicSet[T any] map[any]struct{}

// NewPolymorphicSet creates a PolymorphicSet containing the supplied values.
func NewPolymorphicSet[T any](values ...T) PolymorphicSet[T] {
	s := make(PolymorphicSet[T], len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

func (s PolymorphicSet[T]) Add(value T) {
	s[value] = struct{}{}
}

func (s PolymorphicSet[T]) Remove(value T) {
	delete(s, value)
}

func (s PolymorphicSet[T]) Contains(value T) bool {
	_, ok := s[value]
	return ok
}

func (s PolymorphicSet[T]) Len() int {
	return len(s)
}

func (s PolymorphicSet[T]) Clear() {
	for v := range s {
		delete(s, v)
	}
}

// ToSlice returns the set's values as a slice, in no particular order.
func (s PolymorphicSet[T]) ToSlice() []T {
	values := make([]T, 0, len(s))
	for v := range s {
		values = append(values, v.(T))
	}
	return values
}
