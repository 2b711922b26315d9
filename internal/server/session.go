package server

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tradepost/tradepost/internal/storage/memory"
)

// Greeting is the unsolicited first line sent on every new connection.
const Greeting = "Welcome to the Marketplace Server!"

// Session interprets the line protocol for a single connection. Its only
// mutable state is the currently authenticated username; everything else
// lives in the shared store.
type Session struct {
	id      uuid.UUID
	store   *memory.Store
	logger  *slog.Logger
	current string
}

func NewSession(store *memory.Store, logger *slog.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:     id,
		store:  store,
		logger: logger.With(slog.String("session", id.String())),
	}
}

// Handle executes exactly one command line and returns the response text
// (possibly multi-line, empty for blank input) and whether the connection
// should close.
func (s *Session) Handle(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "register":
		return s.register(args), false
	case "login":
		return s.login(args), false
	case "logout":
		s.current = ""
		return "Logged out.", false
	case "additem":
		return s.addItem(args), false
	case "sellitem":
		return s.sellItem(args), false
	case "unsellitem":
		return s.unsellItem(args), false
	case "listitems":
		return s.listItems(), false
	case "myitems":
		return s.myItems(), false
	case "searchitem":
		return s.searchItem(args), false
	case "changeitemprice":
		return s.changeItemPrice(args), false
	case "buy":
		return s.buy(args), false
	case "deleteitem":
		return s.deleteItem(args), false
	case "getbalance":
		return s.getBalance(), false
	case "deleteaccount":
		return s.deleteAccount(args), false
	case "sendmessage":
		return s.sendMessage(args), false
	case "viewuserlist":
		return s.viewUserList(), false
	case "viewconversation":
		return s.viewConversation(args), false
	case "exit":
		return "Goodbye!", true
	default:
		return "Unknown command: " + cmd, false
	}
}

func (s *Session) loggedIn() bool {
	return s.current != ""
}

const loginPrompt = "Please login first."

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func (s *Session) register(args []string) string {
	if len(args) < 3 {
		return "Usage: register <username> <password> <balance>"
	}
	balance, err := decimal.NewFromString(args[2])
	if err != nil {
		return "Invalid balance."
	}
	err = s.store.Register(args[0], args[1], balance)
	switch {
	case errors.Is(err, memory.ErrUsernameTaken):
		return "Username already exists."
	case errors.Is(err, memory.ErrNegativeAmount):
		return "Invalid balance."
	case err != nil:
		return "Registration failed."
	}
	return "User registered."
}

func (s *Session) login(args []string) string {
	if len(args) < 2 {
		return "Usage: login <username> <password>"
	}
	if err := s.store.Authenticate(args[0], args[1]); err != nil {
		return "Invalid credentials."
	}
	s.current = args[0]
	s.logger.Debug("Login", slog.String("username", s.current))
	return "Login successful."
}

func (s *Session) addItem(args []string) string {
	if !s.loggedIn() {
		return loginPrompt
	}
	if len(args) < 2 {
		return "Usage: additem <name> <cost>"
	}
	cost, err := decimal.NewFromString(args[1])
	if err != nil {
		return "Invalid cost."
	}
	err = s.store.AddOwnedItem(s.current, args[0], cost)
	switch {
	case errors.Is(err, memory.ErrNegativeAmount):
		return "Invalid cost."
	case err != nil:
		return "Failed to add item."
	}
	return "Item added to inventory."
}

func (s *Session) sellItem(args []string) string {
	if !s.loggedIn() {
		return loginPrompt
	}
	if len(args) < 1 {
		return "Usage: sellitem <itemname>"
	}
	if err := s.store.ListItem(s.current, args[0]); err != nil {
		return "Cannot sell: not in inventory or already listed."
	}
	return "Item listed for sale."
}

func (s *Session) unsellItem(args []string) string {
	if !s.loggedIn() {
		return loginPrompt
	}
	if len(args) < 1 {
		return "Usage: unsellitem <itemname>"
	}
	if err := s.store.UnlistItem(s.current, args[0]); err != nil {
		return "Cannot unlist: not listed by you."
	}
	return "Item removed from sale."
}

func (s *Session) listItems() string {
	items := s.store.Marketplace()
	if len(items) == 0 {
		return "No items found."
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Name+" - "+money(it.Cost)+" - Seller: "+it.Seller)
	}
	return strings.Join(lines, "\n")
}

func (s *Session) myItems() string {
	if !s.loggedIn() {
		return loginPrompt
	}
	items, err := s.store.OwnedItems(s.current)
	if err != nil {
		return "User not found."
	}
	if len(items) == 0 {
		return "No items found."
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Name+" - "+money(it.Cost))
	}
	return strings.Join(lines, "\n")
}

func (s *Session) searchItem(args []string) string {
	if len(args) < 1 {
		return "Usage: searchitem <itemname>"
	}
	it, err := s.store.FindListed(args[0])
	if err != nil {
		return "Item not found or not for sale."
	}
	return "Found item: " + it.Name + ", " + money(it.Cost) + ", Seller: " + it.Seller
}

func (s *Session) changeItemPrice(args []string) string {
	if !s.loggedIn() {
		return loginPrompt
	}
	if len(args) < 2 {
		return "Usage: changeitemprice <itemname> <newprice>"
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil {
		return "Invalid price."
	}
	err = s.store.ChangePrice(s.current, args[0], price)
	switch {
	case errors.Is(err, memory.ErrItemNotFound):
		return "Item not found."
	case errors.Is(err, memory.ErrNotOwner):
		return "You can only change your own items."
	case errors.Is(err, memory.ErrNegativeAmount):
		return "Invalid price."
	case err != nil:
		return "Item could not be changed."
	}
	return "Item changed to " + money(price)
}

func (s *Session) buy(args []string) string {
	if !s.loggedIn() {
		return loginPrompt
	}
	if len(args) < 1 {
		return "Usage: buy <itemname>"
	}
	_, err := s.store.Purchase(s.current, args[0])
	switch {
	case errors.Is(err, memory.ErrItemNotFound):
		return "Item not found."
	case errors.Is(err, memory.ErrInsufficientFunds):
		return "Insufficient funds."
	case errors.Is(err, memory.ErrNotOwner):
		return "You cannot buy your own item."
	case errors.Is(err, memory.ErrUserNotFound):
		return "User not found."
	case err != nil:
		return "Transaction failed."
	}
	return "Transaction processed."
}

func (s *Session) deleteItem(args []string) string {
	if !s.loggedIn() {
		return loginPrompt
	}
	if len(args) < 1 {
		return "Usage: deleteitem <itemname>"
	}
	err := s.store.DeleteOwnedItem(s.current, args[0])
	switch {
	case errors.Is(err, memory.ErrItemNotFound):
		return "Item not found."
	case errors.Is(err, memory.ErrNotOwner):
		return "You can only delete your own items."
	case err != nil:
		return "Item could not be deleted."
	}
	return "Item deleted."
}

func (s *Session) getBalance() string {
	if !s.loggedIn() {
		return loginPrompt
	}
	balance, err := s.store.Balance(s.current)
	if err != nil {
		return "User not found."
	}
	return money(balance)
}

func (s *Session) deleteAccount(args []string) string {
	if !s.loggedIn() {
		return loginPrompt
	}
	if len(args) < 1 {
		return "Usage: deleteaccount <password>"
	}
	if err := s.store.DeleteAccount(s.current, args[0]); err != nil {
		return "Invalid credentials."
	}
	s.current = ""
	return "Account deleted."
}

func (s *Session) sendMessage(args []string) string {
	if !s.loggedIn() {
		return loginPrompt
	}
	if len(args) < 2 {
		return "Usage: sendmessage <receiver> <message>"
	}
	receiver := args[0]
	body := strings.Join(args[1:], " ")
	if err := s.store.SendMessage(s.current, receiver, body); err != nil {
		return "User not found."
	}
	return "Message sent to " + receiver
}

func (s *Session) viewUserList() string {
	if !s.loggedIn() {
		return loginPrompt
	}
	contacts, err := s.store.ContactsOf(s.current)
	if err != nil {
		return "User not found."
	}
	if len(contacts) == 0 {
		return "No messaging history."
	}
	return strings.Join(contacts, "\n")
}

func (s *Session) viewConversation(args []string) string {
	if !s.loggedIn() {
		return loginPrompt
	}
	if len(args) < 1 {
		return "Usage: viewconversation <username>"
	}
	conv := s.store.Conversation(s.current, args[0])
	if len(conv) == 0 {
		return "No messages."
	}
	lines := make([]string, 0, len(conv))
	for _, m := range conv {
		lines = append(lines, m.String())
	}
	return strings.Join(lines, "\n")
}
