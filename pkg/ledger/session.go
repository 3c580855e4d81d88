package ledger

import "context"

// session is a one-to-one handle to a server-side session. It enforces no
// concurrency of its own: callers must not issue overlapping commands on the
// same session, matching the "at most one in-flight command per session"
// ordering guarantee (spec §5).
type session struct {
	// id is the client-visible identity: the request-id of the
	// StartSession response. Distinct from token, which never leaves this
	// struct.
	id    string
	token string

	transport Transport
	logger    Logger
}

func newSession(ctx context.Context, ledgerName string, transport Transport, logger Logger) (*session, error) {
	res, err := transport.Send(ctx, Command{StartSession: &StartSessionCommand{LedgerName: ledgerName}})
	if err != nil {
		return nil, err
	}
	if res.StartSession == nil {
		return nil, &TransactionError{SessionAlive: false, Cause: errUnexpectedResult("StartSession")}
	}
	logger.Log(LogLevelDebug, "session started", "session_id", res.RequestID)
	return &session{
		id:        res.RequestID,
		token:     res.StartSession.SessionToken,
		transport: transport,
		logger:    logger,
	}, nil
}

func (s *session) startTransaction(ctx context.Context) (string, error) {
	res, err := s.transport.Send(ctx, Command{StartTransaction: &StartTransactionCommand{SessionToken: s.token}})
	if err != nil {
		return "", err
	}
	if res.StartTransaction == nil {
		return "", &TransactionError{SessionAlive: false, Cause: errUnexpectedResult("StartTransaction")}
	}
	return res.StartTransaction.TransactionID, nil
}

func (s *session) executeStatement(ctx context.Context, txnID, statement string, params []Value) (Page, error) {
	res, err := s.transport.Send(ctx, Command{ExecuteStatement: &ExecuteStatementCommand{
		SessionToken:  s.token,
		TransactionID: txnID,
		Statement:     statement,
		Parameters:    params,
	}})
	if err != nil {
		return Page{}, err
	}
	if res.ExecuteStatement == nil {
		return Page{}, &TransactionError{TransactionID: txnID, SessionAlive: false, Cause: errUnexpectedResult("ExecuteStatement")}
	}
	return res.ExecuteStatement.FirstPage, nil
}

func (s *session) fetchPage(ctx context.Context, txnID, pageToken string) (Page, error) {
	res, err := s.transport.Send(ctx, Command{FetchPage: &FetchPageCommand{
		SessionToken:  s.token,
		TransactionID: txnID,
		PageToken:     pageToken,
	}})
	if err != nil {
		return Page{}, err
	}
	if res.FetchPage == nil {
		return Page{}, &TransactionError{TransactionID: txnID, SessionAlive: false, Cause: errUnexpectedResult("FetchPage")}
	}
	return res.FetchPage.Page, nil
}

// commitTransaction sends the accumulated digest and verifies the server
// echoes the same one back.
func (s *session) commitTransaction(ctx context.Context, txnID string, d [32]byte) error {
	res, err := s.transport.Send(ctx, Command{CommitTransaction: &CommitTransactionCommand{
		SessionToken:  s.token,
		TransactionID: txnID,
		Digest:        d,
	}})
	if err != nil {
		return err
	}
	if res.CommitTransaction == nil {
		return &TransactionError{TransactionID: txnID, SessionAlive: false, Cause: errUnexpectedResult("CommitTransaction")}
	}
	if res.CommitTransaction.Digest != d {
		return &IntegrityError{TransactionID: txnID, ExpectedDigest: d, ReturnedDigest: res.CommitTransaction.Digest}
	}
	return nil
}

// abortTransaction returns any error to the caller: Transaction.abortBestEffort
// swallows it and reports the session as no longer alive, while
// Transaction.Abort hands it back to the user's lambda.
func (s *session) abortTransaction(ctx context.Context) error {
	_, err := s.transport.Send(ctx, Command{AbortTransaction: &AbortTransactionCommand{SessionToken: s.token}})
	return err
}

// end closes the server-side session. Best-effort; callers generally ignore
// the error beyond logging it.
func (s *session) end(ctx context.Context) error {
	_, err := s.transport.Send(ctx, Command{EndSession: &EndSessionCommand{SessionToken: s.token}})
	return err
}

func errUnexpectedResult(cmd string) error {
	return &malformedResultError{cmd}
}

type malformedResultError struct{ cmd string }

func (e *malformedResultError) Error() string {
	return "ledger: transport returned a result with no " + e.cmd + " payload"
}
