package api

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/NebulaNode/nebula/internal/lib/nebula"
	"github.com/NebulaNode/nebula/internal/lib/stake"
)

type handlers struct {
	service Staking
	logger  *slog.Logger
}

type validatorResponse struct {
	nebula.Profile
	Security []string              `json:"security"`
	State    nebula.ValidatorState `json:"state"`
}

func (h *handlers) validator(c *fiber.Ctx) error {
	return c.JSON(validatorResponse{
		Profile:  h.service.Profile(),
		Security: nebula.SecurityText,
		State:    h.service.State(),
	})
}

func (h *handlers) panels(c *fiber.Ctx) error {
	configs := make([]nebula.PanelConfig, 0, len(nebula.Panels))
	for _, panel := range nebula.Panels {
		configs = append(configs, panel.Config())
	}
	return c.JSON(configs)
}

func (h *handlers) tools(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"tools":   []string{},
		"message": nebula.ToolsEmptyMessage,
		"hint":    nebula.ToolsHint,
	})
}

func (h *handlers) wallet(c *fiber.Ctx) error {
	summary, err := h.service.RefreshWallet(c.UserContext(), c.Params("address"))
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

// actionRequest is the body of quote and transaction requests. Amount is decimal SOL, eg "1.5".
type actionRequest struct {
	Action stake.Action `json:"action"`
	Amount string       `json:"amount"`
}

func (h *handlers) parseAction(c *fiber.Ctx) (stake.Action, uint64, error) {
	var req actionRequest
	if err := c.BodyParser(&req); err != nil {
		return 0, 0, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Action == 0 {
		return 0, 0, fiber.NewError(http.StatusBadRequest, "action must be stake or unstake")
	}
	amount, err := stake.ParseSOL(req.Amount)
	if err != nil {
		return 0, 0, err
	}
	return req.Action, amount, nil
}

func (h *handlers) quote(c *fiber.Ctx) error {
	action, amount, err := h.parseAction(c)
	if err != nil {
		return err
	}
	decision, err := h.service.Quote(c.UserContext(), c.Params("address"), action, amount)
	if err != nil {
		return err
	}
	return c.JSON(decision)
}

func (h *handlers) transaction(c *fiber.Ctx) error {
	action, amount, err := h.parseAction(c)
	if err != nil {
		return err
	}
	owner := c.Params("address")
	decision, err := h.service.Quote(c.UserContext(), owner, action, amount)
	if err != nil {
		return err
	}
	prepared, err := h.service.PrepareTransaction(c.UserContext(), owner, decision)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(prepared)
}

func (h *handlers) history(c *fiber.Ctx) error {
	entries, err := h.service.History(c.UserContext(), c.Params("address"), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"entries": entries})
}
