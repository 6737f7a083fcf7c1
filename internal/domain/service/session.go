package service

// Session 认证会话，对核心只读
type Session interface {
	IsAuthenticated() bool
	Identifier() string
	UserID() string
	CurrentCredits() int
}

// StaticSession 由 JWT 声明和启动时余额构造的会话
type StaticSession struct {
	User     string
	WalletID string
	Credits  int
}

func (s StaticSession) IsAuthenticated() bool { return s.WalletID != "" }
func (s StaticSession) Identifier() string    { return s.WalletID }
func (s StaticSession) UserID() string        { return s.User }
func (s StaticSession) CurrentCredits() int   { return s.Credits }
