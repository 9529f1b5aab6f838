package repokit

// Binder binds a domain repo to a Queryer, either the pool or an open tx
type Binder[T any] interface {
	Bind(Queryer) T
}

// BindFunc adapts a constructor into a Binder
type BindFunc[T any] func(Queryer) T

// Bind calls the underlying function
func (f BindFunc[T]) Bind(q Queryer) T { return f(q) }
