package dummydb

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core/audit"
	"github.com/trezcool/awe-academy/core/fee"
	"github.com/trezcool/awe-academy/core/student"
	"github.com/trezcool/awe-academy/core/supply"
	"github.com/trezcool/awe-academy/core/user"
)

var errDuplicateReceipt = errors.New(`duplicate key value violates unique constraint "payments_receipt_number_key"`)

type (
	// DB is an in-memory store for tests.
	// Transactions are serialised and restore the state they started from when they fail.
	DB struct {
		txMu sync.Mutex   // held by the running transaction
		mu   sync.RWMutex // guards data & failures
		data *tables

		failures map[string]error
	}

	tables struct {
		seq           map[string]int
		users         map[int]user.User
		students      map[int]student.Student
		fees          map[int]fee.Fee
		studentFees   map[int]fee.StudentFee
		payments      map[int]fee.Payment
		supplies      map[int]supply.Supply
		distributions map[int]supply.Distribution
		auditLog      []audit.Entry
	}
)

func Open() *DB {
	return &DB{
		data: &tables{
			seq:           make(map[string]int),
			users:         make(map[int]user.User),
			students:      make(map[int]student.Student),
			fees:          make(map[int]fee.Fee),
			studentFees:   make(map[int]fee.StudentFee),
			payments:      make(map[int]fee.Payment),
			supplies:      make(map[int]supply.Supply),
			distributions: make(map[int]supply.Distribution),
		},
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of the repository method `op` return `err`. A nil err clears it.
func (db *DB) FailOn(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err == nil {
		delete(db.failures, op)
		return
	}
	db.failures[op] = err
}

func (t *tables) nextID(table string) int {
	t.seq[table]++
	return t.seq[table]
}

func (t *tables) clone() *tables {
	c := &tables{
		seq:           make(map[string]int, len(t.seq)),
		users:         make(map[int]user.User, len(t.users)),
		students:      make(map[int]student.Student, len(t.students)),
		fees:          make(map[int]fee.Fee, len(t.fees)),
		studentFees:   make(map[int]fee.StudentFee, len(t.studentFees)),
		payments:      make(map[int]fee.Payment, len(t.payments)),
		supplies:      make(map[int]supply.Supply, len(t.supplies)),
		distributions: make(map[int]supply.Distribution, len(t.distributions)),
		auditLog:      make([]audit.Entry, len(t.auditLog)),
	}
	// sequences are not transactional in postgres either
	for k, v := range t.seq {
		c.seq[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.fees {
		c.fees[k] = v
	}
	for k, v := range t.studentFees {
		c.studentFees[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.supplies {
		c.supplies[k] = v
	}
	for k, v := range t.distributions {
		c.distributions[k] = v
	}
	copy(c.auditLog, t.auditLog)
	return c
}

// conn is what repositories run their statements on: the DB itself, or a running transaction.
type conn struct {
	db   *DB
	inTx bool
}

func (c conn) failure(op string) error {
	return c.db.failures[op]
}

func (c conn) view(op string, fn func(t *tables) error) error {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()
	if err := c.failure(op); err != nil {
		return err
	}
	return fn(c.db.data)
}

func (c conn) update(op string, fn func(t *tables) error) error {
	if !c.inTx {
		c.db.txMu.Lock()
		defer c.db.txMu.Unlock()
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if err := c.failure(op); err != nil {
		return err
	}
	return fn(c.db.data)
}

func (c conn) atomic(fn func(tx conn) error) (err error) {
	if c.inTx {
		return fn(c)
	}

	c.db.txMu.Lock()
	defer c.db.txMu.Unlock()

	c.db.mu.RLock()
	snapshot := c.db.data.clone()
	c.db.mu.RUnlock()

	rollback := func() {
		c.db.mu.Lock()
		seq := c.db.data.seq
		c.db.data = snapshot
		c.db.data.seq = seq
		c.db.mu.Unlock()
	}
	defer func() {
		if r := recover(); r != nil {
			rollback()
			panic(r)
		}
	}()

	if err = fn(conn{db: c.db, inTx: true}); err != nil {
		rollback()
	}
	return err
}
