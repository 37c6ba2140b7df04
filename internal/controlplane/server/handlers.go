package server

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/betbot/vaultgate/internal/domain"
)

func parseAddress(c *gin.Context, field, value string, allowEmpty bool) (common.Address, bool) {
	if value == "" && allowEmpty {
		return common.Address{}, true
	}
	if !common.IsHexAddress(value) {
		badRequest(c, field+" is not a valid address")
		return common.Address{}, false
	}
	return common.HexToAddress(value), true
}

func parseAmount(c *gin.Context, value string) (*big.Int, bool) {
	amount, err := domain.ParseBaseUnits(value)
	if err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	return amount, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "invalid json body")
		return false
	}
	return true
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.svc.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleWithdrawLimit(c *gin.Context) {
	account, ok := parseAddress(c, "account", c.Param("account"), false)
	if !ok {
		return
	}
	limit, err := s.svc.WithdrawLimit(c.Request.Context(), account)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withdrawLimitResponse{Account: account.Hex(), Limit: limit})
}

func (s *Server) handleJournal(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.svc.Journal(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleReport(c *gin.Context) {
	rep, err := s.svc.Report(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req depositRequest
	if !bindJSON(c, &req) {
		return
	}
	from, ok := parseAddress(c, "from", req.From, true)
	if !ok {
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	if err := s.svc.Deposit(c.Request.Context(), from, amount); err != nil {
		writeError(c, err)
		return
	}
	s.handleStatus(c)
}

func (s *Server) handleWithdraw(c *gin.Context) {
	var req withdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	to, ok := parseAddress(c, "to", req.To, false)
	if !ok {
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	res, err := s.svc.Withdraw(c.Request.Context(), to, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSetUnlockTime(c *gin.Context) {
	var req unlockTimeRequest
	if !bindJSON(c, &req) {
		return
	}
	caller, ok := parseAddress(c, "caller", req.Caller, false)
	if !ok {
		return
	}
	if err := s.svc.SetUnlockTime(c.Request.Context(), caller, req.UnlockTime); err != nil {
		writeError(c, err)
		return
	}
	s.handleStatus(c)
}

func (s *Server) handleFreeze(c *gin.Context) {
	var req callerRequest
	if !bindJSON(c, &req) {
		return
	}
	caller, ok := parseAddress(c, "caller", req.Caller, false)
	if !ok {
		return
	}
	if err := s.svc.FreezeUnlock(c.Request.Context(), caller); err != nil {
		writeError(c, err)
		return
	}
	s.handleStatus(c)
}

func (s *Server) handleShutdown(c *gin.Context) {
	var req callerRequest
	if !bindJSON(c, &req) {
		return
	}
	caller, ok := parseAddress(c, "caller", req.Caller, false)
	if !ok {
		return
	}
	if err := s.svc.Shutdown(c.Request.Context(), caller); err != nil {
		writeError(c, err)
		return
	}
	s.handleStatus(c)
}

func (s *Server) handleEmergencyFree(c *gin.Context) {
	var req emergencyFreeRequest
	if !bindJSON(c, &req) {
		return
	}
	caller, ok := parseAddress(c, "caller", req.Caller, false)
	if !ok {
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	got, err := s.svc.EmergencyFree(c.Request.Context(), caller, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, emergencyFreeResponse{Recovered: got})
}

func (s *Server) handleFaucet(c *gin.Context) {
	var req faucetRequest
	if !bindJSON(c, &req) {
		return
	}
	to, ok := parseAddress(c, "to", req.To, false)
	if !ok {
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	s.cfg.Faucet.Mint(to, amount)
	log.Infof("🚰 [API] faucet: to=%s amount=%s", to.Hex(), amount)
	c.JSON(http.StatusOK, faucetResponse{To: to.Hex(), Minted: amount})
}

func (s *Server) handleBreaker(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Breaker())
}

func (s *Server) handleResumeBreaker(c *gin.Context) {
	var req callerRequest
	if !bindJSON(c, &req) {
		return
	}
	caller, ok := parseAddress(c, "caller", req.Caller, false)
	if !ok {
		return
	}
	if err := s.svc.ResumeBreaker(c.Request.Context(), caller); err != nil {
		writeError(c, err)
		return
	}
	s.handleBreaker(c)
}
