package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"caosbot/internal/models"
	"caosbot/pkg/utils"
)

const (
	cmdBalance  = "saldo"
	cmdGive     = "dar-monedas"
	cmdTake     = "quitar-monedas"
	cmdTransfer = "transferir-monedas"

	optUser   = "usuario"
	optAmount = "cantidad"

	reasonAdminGive = "regalo del cosmos"
	reasonAdminTake = "castigo del cosmos"
	reasonTransfer  = "transferencia"
	reasonRefund    = "reembolso de transferencia"
)

var errInvalidArguments = errors.New("missing user or amount")

// Commands returns the slash commands registered on ready
func Commands() []*discordgo.ApplicationCommand {
	adminPerms := int64(discordgo.PermissionAdministrator)
	minAmount := 1.0

	targetOptions := func(verb string) []*discordgo.ApplicationCommandOption {
		return []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        optUser,
				Description: "Usuario " + verb,
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        optAmount,
				Description: "Cantidad de monedas",
				Required:    true,
				MinValue:    &minAmount,
			},
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdBalance,
			Description: "Consulta tus monedas del caos",
		},
		{
			Name:                     cmdGive,
			Description:              "Otorga monedas del caos a un usuario",
			DefaultMemberPermissions: &adminPerms,
			Options:                  targetOptions("que recibirá las monedas"),
		},
		{
			Name:                     cmdTake,
			Description:              "Retira monedas del caos a un usuario",
			DefaultMemberPermissions: &adminPerms,
			Options:                  targetOptions("al que se le retirarán las monedas"),
		},
		{
			Name:        cmdTransfer,
			Description: "Transfiere tus monedas del caos a otro usuario",
			Options:     targetOptions("que recibirá las monedas"),
		},
	}
}

type commandArgs struct {
	target models.User
	amount int
}

// parseArgs reads the usuario and cantidad options of a command
func parseArgs(data discordgo.ApplicationCommandInteractionData) (commandArgs, error) {
	var args commandArgs
	for _, opt := range data.Options {
		switch opt.Name {
		case optUser:
			args.target.ID = opt.UserValue(nil).ID
		case optAmount:
			args.amount = int(opt.IntValue())
		}
	}
	if args.target.ID == "" || args.amount <= 0 {
		return commandArgs{}, errInvalidArguments
	}

	args.target.Username = "unknown"
	if data.Resolved != nil {
		if u, ok := data.Resolved.Users[args.target.ID]; ok {
			args.target.Username = u.Username
		}
	}
	return args, nil
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && utils.HasAdministrator(i.Member.Permissions)
}

func (b *Bot) handleInteraction(ctx context.Context, s Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	author := interactionUser(i)
	if author == nil {
		return
	}
	caller := models.User{ID: author.ID, Username: author.Username}
	data := i.ApplicationCommandData()

	log.Info().Str("command", data.Name).Str("user", caller.ID).Msg("command received")

	var reply string
	var err error
	switch data.Name {
	case cmdBalance:
		reply, err = b.balance(ctx, caller)
	case cmdGive:
		reply, err = b.adjust(ctx, i, data, 1)
	case cmdTake:
		reply, err = b.adjust(ctx, i, data, -1)
	case cmdTransfer:
		reply, err = b.transfer(ctx, caller, data)
	default:
		reply = msgUnknownCommand
	}
	if err != nil {
		log.Error().Err(err).Str("command", data.Name).Str("user", caller.ID).Msg("command failed")
		reply = randomPhrase(errorPhrases)
	}

	b.respond(ctx, s, i, reply)
}

func (b *Bot) respond(ctx context.Context, s Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Str("interaction", i.ID).Msg("failed to respond to interaction")
	}
}

func (b *Bot) balance(ctx context.Context, caller models.User) (string, error) {
	balance, err := b.coins.GetCoins(ctx, caller.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s.", randomPhrase(balancePhrases), utils.FormatCoins(balance)), nil
}

// adjust credits (sign 1) or debits (sign -1) the target. Administrators only
func (b *Bot) adjust(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, sign int) (string, error) {
	if !isAdmin(i) {
		return msgNoPermission, nil
	}
	args, err := parseArgs(data)
	if err != nil {
		return msgMissingArguments, nil
	}

	reason := reasonAdminGive
	if sign < 0 {
		reason = reasonAdminTake
	}
	receipt, err := b.coins.Report(ctx, args.target, sign*args.amount, reason)
	if err != nil {
		return "", err
	}
	if receipt.Skipped {
		return msgBusy, nil
	}

	mention := utils.FormatUserMention(args.target.ID)
	if sign < 0 {
		return fmt.Sprintf("El cosmos ha arrebatado %s a %s.\nSu poder se reduce a %s.",
			utils.FormatCoins(args.amount), mention, utils.FormatCoins(receipt.NewBalance)), nil
	}
	return fmt.Sprintf("El cosmos ha canalizado %s hacia %s.\nSu nuevo poder asciende a %s.",
		utils.FormatCoins(args.amount), mention, utils.FormatCoins(receipt.NewBalance)), nil
}

// transfer moves coins from caller to the target. The receiver is credited
// only after the sender debit was applied and the sender is refunded when
// the credit does not go through
func (b *Bot) transfer(ctx context.Context, caller models.User, data discordgo.ApplicationCommandInteractionData) (string, error) {
	args, err := parseArgs(data)
	if err != nil {
		return msgInvalidTransfer, nil
	}
	if args.target.ID == caller.ID {
		return msgSelfTransfer, nil
	}

	balance, err := b.coins.GetCoins(ctx, caller.ID)
	if err != nil {
		return "", err
	}
	if balance < args.amount {
		return msgInsufficient, nil
	}

	debit, err := b.coins.Report(ctx, caller, -args.amount, reasonTransfer)
	if err != nil {
		return "", err
	}
	if debit.Skipped {
		return msgBusy, nil
	}

	credit, err := b.coins.Report(ctx, args.target, args.amount, reasonTransfer)
	if err != nil || credit.Skipped {
		if err != nil {
			log.Error().Err(err).Str("from", caller.ID).Str("to", args.target.ID).Msg("transfer credit failed, refunding sender")
		} else {
			log.Warn().Str("from", caller.ID).Str("to", args.target.ID).Msg("transfer credit skipped, refunding sender")
		}
		if _, rerr := b.coins.Refund(ctx, caller, args.amount, reasonRefund); rerr != nil {
			log.Error().Err(rerr).Str("user", caller.ID).Int("amount", args.amount).Msg("transfer refund failed")
		}
		if err != nil {
			return "", err
		}
		return msgBusy, nil
	}

	log.Info().Str("from", caller.ID).Str("to", args.target.ID).Int("amount", args.amount).Msg("transfer completed")
	mention := utils.FormatUserMention(args.target.ID)
	return fmt.Sprintf("Has canalizado %s hacia %s.\nTu poder actual: %s\nPoder de %s: %s",
		utils.FormatCoins(args.amount), mention, utils.FormatCoins(debit.NewBalance),
		mention, utils.FormatCoins(credit.NewBalance)), nil
}
