// Package awsqldb adapts pkg/ledger.Transport onto the real Ledger wire
// protocol via aws-sdk-go's qldbsession client: it is the only library
// package in this module that imports the AWS SDK or knows the shape of
// SendCommand (cmd/ledgerctl also imports the SDK, to build the client).
package awsqldb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/qldbsession"
	"github.com/aws/aws-sdk-go/service/qldbsession/qldbsessioniface"

	"github.com/ledgerql/driver-go/pkg/ledger"
)

// Transport implements ledger.Transport over a qldbsessioniface.QLDBSessionAPI
// client. The underlying SDK client's own retry logic must be disabled
// (MaxRetries = 0): retries are owned entirely by the retry orchestrator in
// pkg/ledger, which needs to observe every individual failure to classify it.
type Transport struct {
	client qldbsessioniface.QLDBSessionAPI
}

// New wraps client for use as a ledger.Transport. Callers are responsible
// for constructing client with MaxRetries set to 0.
func New(client qldbsessioniface.QLDBSessionAPI) *Transport {
	return &Transport{client: client}
}

var _ ledger.Transport = (*Transport)(nil)

// Send maps one ledger.Command onto a qldbsession SendCommand call and maps
// the response, or any awserr.Error, back into the pkg/ledger error
// taxonomy.
func (t *Transport) Send(ctx context.Context, cmd ledger.Command) (ledger.Result, error) {
	input := &qldbsession.SendCommandInput{}

	switch {
	case cmd.StartSession != nil:
		input.StartSession = &qldbsession.StartSessionRequest{
			LedgerName: aws.String(cmd.StartSession.LedgerName),
		}
	case cmd.StartTransaction != nil:
		input.SessionToken = aws.String(cmd.StartTransaction.SessionToken)
		input.StartTransaction = &qldbsession.StartTransactionRequest{}
	case cmd.ExecuteStatement != nil:
		c := cmd.ExecuteStatement
		input.SessionToken = aws.String(c.SessionToken)
		input.ExecuteStatement = &qldbsession.ExecuteStatementRequest{
			TransactionId: aws.String(c.TransactionID),
			Statement:     aws.String(c.Statement),
			Parameters:    valueHolders(c.Parameters),
		}
	case cmd.FetchPage != nil:
		c := cmd.FetchPage
		input.SessionToken = aws.String(c.SessionToken)
		input.FetchPage = &qldbsession.FetchPageRequest{
			TransactionId: aws.String(c.TransactionID),
			PageToken:     aws.String(c.PageToken),
		}
	case cmd.CommitTransaction != nil:
		c := cmd.CommitTransaction
		input.SessionToken = aws.String(c.SessionToken)
		input.CommitTransaction = &qldbsession.CommitTransactionRequest{
			TransactionId: aws.String(c.TransactionID),
			CommitDigest:  c.Digest[:],
		}
	case cmd.AbortTransaction != nil:
		input.SessionToken = aws.String(cmd.AbortTransaction.SessionToken)
		input.AbortTransaction = &qldbsession.AbortTransactionRequest{}
	case cmd.EndSession != nil:
		input.SessionToken = aws.String(cmd.EndSession.SessionToken)
		input.EndSession = &qldbsession.EndSessionRequest{}
	default:
		return ledger.Result{}, fmt.Errorf("awsqldb: empty command")
	}

	output, err := t.client.SendCommandWithContext(ctx, input)
	if err != nil {
		return ledger.Result{}, classifyAWSError(err, transactionIDOf(cmd))
	}

	return toResult(output), nil
}

func transactionIDOf(cmd ledger.Command) string {
	switch {
	case cmd.ExecuteStatement != nil:
		return cmd.ExecuteStatement.TransactionID
	case cmd.FetchPage != nil:
		return cmd.FetchPage.TransactionID
	case cmd.CommitTransaction != nil:
		return cmd.CommitTransaction.TransactionID
	default:
		return ""
	}
}

func valueHolders(params []ledger.Value) []*qldbsession.ValueHolder {
	if len(params) == 0 {
		return nil
	}
	out := make([]*qldbsession.ValueHolder, len(params))
	for i, p := range params {
		out[i] = &qldbsession.ValueHolder{IonBinary: p.Bytes()}
	}
	return out
}

func toResult(out *qldbsession.SendCommandOutput) ledger.Result {
	res := ledger.Result{}
	if out.ResponseMetadata != nil {
		res.RequestID = aws.StringValue(out.ResponseMetadata.RequestId)
	}

	switch {
	case out.StartSession != nil:
		res.StartSession = &ledger.StartSessionResult{SessionToken: aws.StringValue(out.StartSession.SessionToken)}
	case out.StartTransaction != nil:
		res.StartTransaction = &ledger.StartTransactionResult{TransactionID: aws.StringValue(out.StartTransaction.Id)}
	case out.ExecuteStatement != nil:
		res.ExecuteStatement = &ledger.ExecuteStatementResult{FirstPage: toPage(out.ExecuteStatement.FirstPage)}
	case out.FetchPage != nil:
		res.FetchPage = &ledger.FetchPageResult{Page: toPage(out.FetchPage.Page)}
	case out.CommitTransaction != nil:
		var digest [32]byte
		copy(digest[:], out.CommitTransaction.CommitDigest)
		res.CommitTransaction = &ledger.CommitTransactionResult{Digest: digest}
	}
	return res
}

func toPage(p *qldbsession.Page) ledger.Page {
	if p == nil {
		return ledger.Page{}
	}
	values := make([]ledger.Value, len(p.Values))
	for i, v := range p.Values {
		values[i] = ionValue(v.IonBinary)
	}
	return ledger.Page{
		Values:        values,
		NextPageToken: aws.StringValue(p.NextPageToken),
	}
}

// ionValue is the minimal ledger.Value this package produces on the read
// path; callers needing typed decoding wrap the same bytes with
// pkg/ledgerval.FromBytes.
type ionValue []byte

func (v ionValue) Bytes() []byte { return v }

// classifyAWSError maps an AWS SDK error into the pkg/ledger error taxonomy,
// matching the error-code/status-code precedence the real Ledger service
// uses: named QLDB exceptions first, then generic HTTP status.
func classifyAWSError(err error, transactionID string) error {
	var reqErr awserr.RequestFailure
	if ae, ok := err.(awserr.RequestFailure); ok {
		reqErr = ae
	}

	var ae awserr.Error
	if e, ok := err.(awserr.Error); ok {
		ae = e
	}
	if ae == nil {
		return &ledger.TransportError{StatusCode: 0, Cause: err}
	}

	switch ae.Code() {
	case "InvalidSessionException":
		return ledger.NewInvalidSessionError(transactionID, ae.Message())
	case "OccConflictException":
		return &ledger.OccConflictError{TransactionID: transactionID, Cause: ae}
	case "CapacityExceededException":
		return &ledger.CapacityExceededError{TransactionID: transactionID, Cause: ae}
	}

	statusCode := 0
	if reqErr != nil {
		statusCode = reqErr.StatusCode()
	}
	return &ledger.TransportError{StatusCode: statusCode, Cause: ae}
}
