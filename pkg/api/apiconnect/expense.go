package apiconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/pkg/api"
)

// ExpenseServiceName is the fully-qualified name of the ExpenseService.
const ExpenseServiceName = "splitledger.v1.ExpenseService"

// Procedure paths of the ExpenseService RPCs.
const (
	ExpenseServiceCreateObligationProcedure    = "/splitledger.v1.ExpenseService/CreateObligation"
	ExpenseServiceUpdateObligationProcedure    = "/splitledger.v1.ExpenseService/UpdateObligation"
	ExpenseServiceDeleteObligationProcedure    = "/splitledger.v1.ExpenseService/DeleteObligation"
	ExpenseServiceListObligationsProcedure     = "/splitledger.v1.ExpenseService/ListObligations"
	ExpenseServiceAddAttachmentProcedure       = "/splitledger.v1.ExpenseService/AddAttachment"
	ExpenseServiceRecordReimbursementProcedure = "/splitledger.v1.ExpenseService/RecordReimbursement"
	ExpenseServiceMaterializeDueProcedure      = "/splitledger.v1.ExpenseService/MaterializeDue"
)

// ExpenseServiceHandler is implemented by the server side of the ExpenseService.
type ExpenseServiceHandler interface {
	CreateObligation(context.Context, *connect.Request[api.CreateObligationRequest]) (*connect.Response[api.CreateObligationResponse], error)
	UpdateObligation(context.Context, *connect.Request[api.UpdateObligationRequest]) (*connect.Response[api.UpdateObligationResponse], error)
	DeleteObligation(context.Context, *connect.Request[api.DeleteObligationRequest]) (*connect.Response[api.DeleteObligationResponse], error)
	ListObligations(context.Context, *connect.Request[api.ListObligationsRequest]) (*connect.Response[api.ListObligationsResponse], error)
	AddAttachment(context.Context, *connect.Request[api.AddAttachmentRequest]) (*connect.Response[api.AddAttachmentResponse], error)
	RecordReimbursement(context.Context, *connect.Request[api.RecordReimbursementRequest]) (*connect.Response[api.RecordReimbursementResponse], error)
	MaterializeDue(context.Context, *connect.Request[api.MaterializeDueRequest]) (*connect.Response[api.MaterializeDueResponse], error)
}

// NewExpenseServiceHandler builds an HTTP handler for svc. It returns the path
// to mount the handler on.
func NewExpenseServiceHandler(svc ExpenseServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = withJSON(opts)
	createObligation := connect.NewUnaryHandler(ExpenseServiceCreateObligationProcedure, svc.CreateObligation, opts...)
	updateObligation := connect.NewUnaryHandler(ExpenseServiceUpdateObligationProcedure, svc.UpdateObligation, opts...)
	deleteObligation := connect.NewUnaryHandler(ExpenseServiceDeleteObligationProcedure, svc.DeleteObligation, opts...)
	listObligations := connect.NewUnaryHandler(ExpenseServiceListObligationsProcedure, svc.ListObligations, opts...)
	addAttachment := connect.NewUnaryHandler(ExpenseServiceAddAttachmentProcedure, svc.AddAttachment, opts...)
	recordReimbursement := connect.NewUnaryHandler(ExpenseServiceRecordReimbursementProcedure, svc.RecordReimbursement, opts...)
	materializeDue := connect.NewUnaryHandler(ExpenseServiceMaterializeDueProcedure, svc.MaterializeDue, opts...)

	return "/" + ExpenseServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ExpenseServiceCreateObligationProcedure:
			createObligation.ServeHTTP(w, r)
		case ExpenseServiceUpdateObligationProcedure:
			updateObligation.ServeHTTP(w, r)
		case ExpenseServiceDeleteObligationProcedure:
			deleteObligation.ServeHTTP(w, r)
		case ExpenseServiceListObligationsProcedure:
			listObligations.ServeHTTP(w, r)
		case ExpenseServiceAddAttachmentProcedure:
			addAttachment.ServeHTTP(w, r)
		case ExpenseServiceRecordReimbursementProcedure:
			recordReimbursement.ServeHTTP(w, r)
		case ExpenseServiceMaterializeDueProcedure:
			materializeDue.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// ExpenseServiceClient is a client for the ExpenseService.
type ExpenseServiceClient interface {
	CreateObligation(context.Context, *connect.Request[api.CreateObligationRequest]) (*connect.Response[api.CreateObligationResponse], error)
	UpdateObligation(context.Context, *connect.Request[api.UpdateObligationRequest]) (*connect.Response[api.UpdateObligationResponse], error)
	DeleteObligation(context.Context, *connect.Request[api.DeleteObligationRequest]) (*connect.Response[api.DeleteObligationResponse], error)
	ListObligations(context.Context, *connect.Request[api.ListObligationsRequest]) (*connect.Response[api.ListObligationsResponse], error)
	AddAttachment(context.Context, *connect.Request[api.AddAttachmentRequest]) (*connect.Response[api.AddAttachmentResponse], error)
	RecordReimbursement(context.Context, *connect.Request[api.RecordReimbursementRequest]) (*connect.Response[api.RecordReimbursementResponse], error)
	MaterializeDue(context.Context, *connect.Request[api.MaterializeDueRequest]) (*connect.Response[api.MaterializeDueResponse], error)
}

// NewExpenseServiceClient constructs a client for the ExpenseService at baseURL.
func NewExpenseServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) ExpenseServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &expenseServiceClient{
		createObligation:    connect.NewClient[api.CreateObligationRequest, api.CreateObligationResponse](httpClient, baseURL+ExpenseServiceCreateObligationProcedure, opts...),
		updateObligation:    connect.NewClient[api.UpdateObligationRequest, api.UpdateObligationResponse](httpClient, baseURL+ExpenseServiceUpdateObligationProcedure, opts...),
		deleteObligation:    connect.NewClient[api.DeleteObligationRequest, api.DeleteObligationResponse](httpClient, baseURL+ExpenseServiceDeleteObligationProcedure, opts...),
		listObligations:     connect.NewClient[api.ListObligationsRequest, api.ListObligationsResponse](httpClient, baseURL+ExpenseServiceListObligationsProcedure, opts...),
		addAttachment:       connect.NewClient[api.AddAttachmentRequest, api.AddAttachmentResponse](httpClient, baseURL+ExpenseServiceAddAttachmentProcedure, opts...),
		recordReimbursement: connect.NewClient[api.RecordReimbursementRequest, api.RecordReimbursementResponse](httpClient, baseURL+ExpenseServiceRecordReimbursementProcedure, opts...),
		materializeDue:      connect.NewClient[api.MaterializeDueRequest, api.MaterializeDueResponse](httpClient, baseURL+ExpenseServiceMaterializeDueProcedure, opts...),
	}
}

type expenseServiceClient struct {
	createObligation    *connect.Client[api.CreateObligationRequest, api.CreateObligationResponse]
	updateObligation    *connect.Client[api.UpdateObligationRequest, api.UpdateObligationResponse]
	deleteObligation    *connect.Client[api.DeleteObligationRequest, api.DeleteObligationResponse]
	listObligations     *connect.Client[api.ListObligationsRequest, api.ListObligationsResponse]
	addAttachment       *connect.Client[api.AddAttachmentRequest, api.AddAttachmentResponse]
	recordReimbursement *connect.Client[api.RecordReimbursementRequest, api.RecordReimbursementResponse]
	materializeDue      *connect.Client[api.MaterializeDueRequest, api.MaterializeDueResponse]
}

func (c *expenseServiceClient) CreateObligation(ctx context.Context, req *connect.Request[api.CreateObligationRequest]) (*connect.Response[api.CreateObligationResponse], error) {
	return c.createObligation.CallUnary(ctx, req)
}

func (c *expenseServiceClient) UpdateObligation(ctx context.Context, req *connect.Request[api.UpdateObligationRequest]) (*connect.Response[api.UpdateObligationResponse], error) {
	return c.updateObligation.CallUnary(ctx, req)
}

func (c *expenseServiceClient) DeleteObligation(ctx context.Context, req *connect.Request[api.DeleteObligationRequest]) (*connect.Response[api.DeleteObligationResponse], error) {
	return c.deleteObligation.CallUnary(ctx, req)
}

func (c *expenseServiceClient) ListObligations(ctx context.Context, req *connect.Request[api.ListObligationsRequest]) (*connect.Response[api.ListObligationsResponse], error) {
	return c.listObligations.CallUnary(ctx, req)
}

func (c *expenseServiceClient) AddAttachment(ctx context.Context, req *connect.Request[api.AddAttachmentRequest]) (*connect.Response[api.AddAttachmentResponse], error) {
	return c.addAttachment.CallUnary(ctx, req)
}

func (c *expenseServiceClient) RecordReimbursement(ctx context.Context, req *connect.Request[api.RecordReimbursementRequest]) (*connect.Response[api.RecordReimbursementResponse], error) {
	return c.recordReimbursement.CallUnary(ctx, req)
}

func (c *expenseServiceClient) MaterializeDue(ctx context.Context, req *connect.Request[api.MaterializeDueRequest]) (*connect.Response[api.MaterializeDueResponse], error) {
	return c.materializeDue.CallUnary(ctx, req)
}
