// Package memory holds the shared in-memory marketplace state. It is the
// sole owner of all users, items and messages; every operation takes the
// store's exclusive lock for its full duration so that compound mutations
// (purchases, cascading account deletes) are atomic with respect to every
// other session.
package memory

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tradepost/tradepost/internal/domain/models"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrItemExists         = errors.New("item name already exists")
	ErrItemNotFound       = errors.New("item not found")
	ErrNotOwner           = errors.New("item not owned by caller")
	ErrAlreadyListed      = errors.New("item already listed")
	ErrNotListed          = errors.New("item not listed")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNegativeAmount     = errors.New("amount must not be negative")
)

type Store struct {
	mu     sync.Mutex
	logger *slog.Logger

	users map[string]*models.User
	// items is the global item namespace, listed and unlisted alike,
	// keyed by the case-folded item name. An item with Listed=false sits
	// in its seller's private inventory; Listed=true puts it on the open
	// market. It is never in both places.
	items    map[string]*models.Item
	messages []models.Message
}

func New(logger *slog.Logger) *Store {
	return &Store{
		logger: logger,
		users:  make(map[string]*models.User),
		items:  make(map[string]*models.Item),
	}
}

func fold(name string) string {
	return strings.ToLower(name)
}

// Register creates a new account with an empty inventory and no messaging
// history. The username must be unused and the opening balance non-negative.
func (s *Store) Register(username, password string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return ErrNegativeAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return ErrUsernameTaken
	}
	s.users[username] = &models.User{
		Username: username,
		Password: password,
		Balance:  balance,
		Contacts: []string{},
	}
	s.logger.Info("Registered user", slog.String("username", username))
	return nil
}

// Authenticate checks credentials by exact string equality.
func (s *Store) Authenticate(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok || u.Password != password {
		return ErrInvalidCredentials
	}
	return nil
}

// DeleteAccount removes the user and cascades: every item the user owns or
// has listed, every message they sent or received, and their name in other
// users' contact lists all go with them. Nothing changes on bad credentials.
func (s *Store) DeleteAccount(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok || u.Password != password {
		return ErrInvalidCredentials
	}

	for key, it := range s.items {
		if it.Seller == username {
			delete(s.items, key)
		}
	}

	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.Sender != username && m.Receiver != username {
			kept = append(kept, m)
		}
	}
	s.messages = kept

	for _, other := range s.users {
		for i, c := range other.Contacts {
			if c == username {
				other.Contacts = append(other.Contacts[:i], other.Contacts[i+1:]...)
				break
			}
		}
	}

	delete(s.users, username)
	s.logger.Info("Deleted account", slog.String("username", username))
	return nil
}

// AddOwnedItem creates an unlisted item in the owner's inventory. Item names
// are unique across the whole store, not just the marketplace, so two users
// can never race colliding listings into existence.
func (s *Store) AddOwnedItem(owner, name string, cost decimal.Decimal) error {
	if cost.IsNegative() {
		return ErrNegativeAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[owner]; !ok {
		return ErrUserNotFound
	}
	key := fold(name)
	if _, ok := s.items[key]; ok {
		return ErrItemExists
	}
	s.items[key] = &models.Item{Name: name, Cost: cost, Seller: owner}
	return nil
}

// ListItem moves an unlisted item from the owner's inventory onto the open
// market.
func (s *Store) ListItem(owner, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[fold(name)]
	if !ok {
		return ErrItemNotFound
	}
	if it.Seller != owner {
		return ErrNotOwner
	}
	if it.Listed {
		return ErrAlreadyListed
	}
	it.Listed = true
	return nil
}

// UnlistItem is the inverse of ListItem: the item returns, unchanged, to the
// owner's private inventory.
func (s *Store) UnlistItem(owner, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[fold(name)]
	if !ok {
		return ErrItemNotFound
	}
	if it.Seller != owner {
		return ErrNotOwner
	}
	if !it.Listed {
		return ErrNotListed
	}
	it.Listed = false
	return nil
}

// DeleteOwnedItem permanently removes an unlisted item. Listed items must be
// unlisted first.
func (s *Store) DeleteOwnedItem(owner, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fold(name)
	it, ok := s.items[key]
	if !ok {
		return ErrItemNotFound
	}
	if it.Seller != owner {
		return ErrNotOwner
	}
	if it.Listed {
		return ErrAlreadyListed
	}
	delete(s.items, key)
	return nil
}

// FindListed returns a copy of the named item if it is currently on the
// market. The match is case-insensitive.
func (s *Store) FindListed(name string) (models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[fold(name)]
	if !ok || !it.Listed {
		return models.Item{}, ErrItemNotFound
	}
	return *it, nil
}

// FindAny matches across both listed and unlisted items.
func (s *Store) FindAny(name string) (models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[fold(name)]
	if !ok {
		return models.Item{}, ErrItemNotFound
	}
	return *it, nil
}

// Marketplace returns a snapshot of every listed item, sorted by name.
func (s *Store) Marketplace() []models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Item
	for _, it := range s.items {
		if it.Listed {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OwnedItems returns a snapshot of the user's private (unlisted) inventory,
// sorted by name.
func (s *Store) OwnedItems(owner string) ([]models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[owner]; !ok {
		return nil, ErrUserNotFound
	}
	var out []models.Item
	for _, it := range s.items {
		if it.Seller == owner && !it.Listed {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ChangePrice updates the cost of the caller's item wherever it currently
// sits. There is exactly one instance per item, so this is a single write.
func (s *Store) ChangePrice(owner, name string, newPrice decimal.Decimal) error {
	if newPrice.IsNegative() {
		return ErrNegativeAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[fold(name)]
	if !ok {
		return ErrItemNotFound
	}
	if it.Seller != owner {
		return ErrNotOwner
	}
	it.Cost = newPrice
	return nil
}

// Purchase atomically buys the named listed item: the buyer is debited, the
// seller credited, and the item leaves the market into the buyer's inventory
// with ownership reassigned. The item is resolved under the lock, so of two
// racing buyers exactly one succeeds and the other sees ErrItemNotFound.
func (s *Store) Purchase(buyer, name string) (models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[fold(name)]
	if !ok || !it.Listed {
		return models.Item{}, ErrItemNotFound
	}
	if it.Seller == buyer {
		return models.Item{}, ErrNotOwner
	}
	b, ok := s.users[buyer]
	if !ok {
		return models.Item{}, ErrUserNotFound
	}
	seller, ok := s.users[it.Seller]
	if !ok {
		return models.Item{}, ErrUserNotFound
	}
	if b.Balance.LessThan(it.Cost) {
		return models.Item{}, ErrInsufficientFunds
	}

	b.Balance = b.Balance.Sub(it.Cost)
	seller.Balance = seller.Balance.Add(it.Cost)
	it.Seller = buyer
	it.Listed = false

	s.logger.Info("Processed transaction",
		slog.String("item", it.Name),
		slog.String("buyer", buyer),
		slog.String("seller", seller.Username),
		slog.String("cost", it.Cost.StringFixed(2)),
	)
	return *it, nil
}

// Balance reports the user's current balance.
func (s *Store) Balance(username string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return decimal.Decimal{}, ErrUserNotFound
	}
	return u.Balance, nil
}

// SendMessage appends a message to the shared log and records each party in
// the other's contact list. Both users must exist.
func (s *Store) SendMessage(sender, receiver, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.users[sender]
	if !ok {
		return ErrUserNotFound
	}
	to, ok := s.users[receiver]
	if !ok {
		return ErrUserNotFound
	}

	s.messages = append(s.messages, models.Message{
		ID:       uuid.New(),
		Sender:   sender,
		Receiver: receiver,
		Body:     body,
		SentAt:   time.Now(),
	})
	addContact(from, receiver)
	addContact(to, sender)
	return nil
}

func addContact(u *models.User, username string) {
	for _, c := range u.Contacts {
		if c == username {
			return
		}
	}
	u.Contacts = append(u.Contacts, username)
}

// Conversation returns every message between the two users, in send order.
func (s *Store) Conversation(userA, userB string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, m := range s.messages {
		if (m.Sender == userA && m.Receiver == userB) ||
			(m.Sender == userB && m.Receiver == userA) {
			out = append(out, m)
		}
	}
	return out
}

// ContactsOf returns the usernames the user has exchanged messages with, in
// first-contact order.
func (s *Store) ContactsOf(username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := make([]string, len(u.Contacts))
	copy(out, u.Contacts)
	return out, nil
}

// MessagesOf returns every message the user sent or received, in send order.
func (s *Store) MessagesOf(username string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, m := range s.messages {
		if m.Sender == username || m.Receiver == username {
			out = append(out, m)
		}
	}
	return out
}
