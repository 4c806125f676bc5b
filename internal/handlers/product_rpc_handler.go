package handlers

import (
	"context"
	"encoding/json"

	"catalog/internal/dto"
	"catalog/internal/services"
	"catalog/pkg/rpc"
)

// Message patterns answered by the products service.
const (
	PatternCreateProduct    = "create_product"
	PatternFindAllProducts  = "find_all_products"
	PatternFindOneProduct   = "find_one_product"
	PatternUpdateProduct    = "update_product"
	PatternDeleteProduct    = "delete_product"
	PatternValidateProducts = "validate_products"
)

// ProductRPCHandler handles product requests arriving over the broker.
type ProductRPCHandler struct {
	service *services.ProductService
}

// NewProductRPCHandler creates a new ProductRPCHandler.
func NewProductRPCHandler(service *services.ProductService) *ProductRPCHandler {
	return &ProductRPCHandler{
		service: service,
	}
}

// RegisterPatterns registers the product patterns with the router.
func (h *ProductRPCHandler) RegisterPatterns(router *rpc.Router) {
	router.Handle(PatternCreateProduct, h.HandleCreate)
	router.Handle(PatternFindAllProducts, h.HandleFindAll)
	router.Handle(PatternFindOneProduct, h.HandleFindOne)
	router.Handle(PatternUpdateProduct, h.HandleUpdate)
	router.Handle(PatternDeleteProduct, h.HandleDelete)
	router.Handle(PatternValidateProducts, h.HandleValidate)
}

type idPayload struct {
	ID uint `json:"id" validate:"required,gte=1"`
}

// HandleCreate expects a CreateProductDTO.
func (h *ProductRPCHandler) HandleCreate(ctx context.Context, data json.RawMessage) (any, error) {
	var in dto.CreateProductDTO
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	return h.service.Create(ctx, in)
}

// HandleFindAll expects an optional PaginationDTO.
func (h *ProductRPCHandler) HandleFindAll(ctx context.Context, data json.RawMessage) (any, error) {
	var page dto.PaginationDTO
	if len(data) > 0 {
		if err := decode(data, &page); err != nil {
			return nil, err
		}
	}
	page = page.WithDefaults()
	if err := dto.Validate(page); err != nil {
		return nil, err
	}
	return h.service.FindAll(ctx, page)
}

// HandleFindOne expects {"id": n}.
func (h *ProductRPCHandler) HandleFindOne(ctx context.Context, data json.RawMessage) (any, error) {
	var in idPayload
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	return h.service.FindOne(ctx, in.ID)
}

// HandleUpdate expects an UpdateProductDTO whose id names the product.
func (h *ProductRPCHandler) HandleUpdate(ctx context.Context, data json.RawMessage) (any, error) {
	var in dto.UpdateProductDTO
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if in.ID == nil {
		return nil, rpc.BadRequest("Validation failed: Field 'id' failed on the 'required' tag")
	}
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	return h.service.Update(ctx, *in.ID, in)
}

// HandleDelete expects {"id": n}.
func (h *ProductRPCHandler) HandleDelete(ctx context.Context, data json.RawMessage) (any, error) {
	var in idPayload
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	if err := dto.Validate(in); err != nil {
		return nil, err
	}
	return h.service.Remove(ctx, in.ID)
}

// HandleValidate expects a bare array of product ids.
func (h *ProductRPCHandler) HandleValidate(ctx context.Context, data json.RawMessage) (any, error) {
	var ids []uint
	if err := decode(data, &ids); err != nil {
		return nil, err
	}
	if err := dto.ValidateIDs(ids); err != nil {
		return nil, err
	}
	return h.service.ValidateProducts(ctx, ids)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return rpc.BadRequest("Invalid request payload: empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return rpc.BadRequest("Invalid request payload: " + err.Error())
	}
	return nil
}
