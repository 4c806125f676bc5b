package handlers

import (
	"log/slog"

	"catalog/internal/dto"
	"catalog/internal/services"
	"catalog/pkg/rpc"

	"github.com/gofiber/fiber/v2"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service *services.ProductService
	logger  *slog.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the product routes with the Fiber app.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Post("/", h.HandleCreateProduct)
	productRoutes.Post("/validate", h.HandleValidateProducts)
	productRoutes.Get("/:id", h.HandleGetProductByID)
	productRoutes.Patch("/:id", h.HandleUpdateProduct)
	productRoutes.Delete("/:id", h.HandleDeleteProduct)
}

// HandleGetProducts returns one page of available products.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	var page dto.PaginationDTO
	if err := c.QueryParser(&page); err != nil {
		return h.writeError(c, rpc.BadRequest("Invalid query parameters"))
	}
	page = page.WithDefaults()
	if err := dto.Validate(page); err != nil {
		return h.writeError(c, err)
	}

	res, err := h.service.FindAll(c.UserContext(), page)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(res)
}

// HandleGetProductByID returns a single available product.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return h.writeError(c, err)
	}

	res, err := h.service.FindOne(c.UserContext(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(res)
}

// HandleCreateProduct creates a new product.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var in dto.CreateProductDTO
	if err := c.BodyParser(&in); err != nil {
		return h.writeError(c, rpc.BadRequest("Invalid request body"))
	}
	if err := dto.Validate(in); err != nil {
		return h.writeError(c, err)
	}

	product, err := h.service.Create(c.UserContext(), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// HandleUpdateProduct applies a partial update. The path id is authoritative.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return h.writeError(c, err)
	}

	var in dto.UpdateProductDTO
	if err := c.BodyParser(&in); err != nil {
		return h.writeError(c, rpc.BadRequest("Invalid request body"))
	}
	if err := dto.Validate(in); err != nil {
		return h.writeError(c, err)
	}

	res, err := h.service.Update(c.UserContext(), id, in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(res)
}

// HandleDeleteProduct marks a product unavailable.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return h.writeError(c, err)
	}

	product, err := h.service.Remove(c.UserContext(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(product)
}

// HandleValidateProducts checks that every id in the body has a stored row.
func (h *ProductHandler) HandleValidateProducts(c *fiber.Ctx) error {
	var in dto.ValidateProductsDTO
	if err := c.BodyParser(&in); err != nil {
		return h.writeError(c, rpc.BadRequest("Invalid request body"))
	}
	if err := dto.Validate(in); err != nil {
		return h.writeError(c, err)
	}

	products, err := h.service.ValidateProducts(c.UserContext(), in.IDs)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(products)
}

func (h *ProductHandler) writeError(c *fiber.Ctx, err error) error {
	rpcErr := rpc.AsError(err)
	if rpcErr.Status >= fiber.StatusInternalServerError {
		h.logger.ErrorContext(c.UserContext(), "Product request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return c.Status(rpcErr.Status).JSON(rpcErr)
}

func productID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return 0, rpc.BadRequest("Validation failed: Field 'id' failed on the 'gte' tag")
	}
	return uint(id), nil
}
